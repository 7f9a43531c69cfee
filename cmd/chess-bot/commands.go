package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-duel-bot/internal/challenge"
	appcfg "github.com/park285/chess-duel-bot/internal/config"
	"github.com/park285/chess-duel-bot/internal/duel"
	"github.com/park285/chess-duel-bot/internal/gateway"
	"github.com/park285/chess-duel-bot/internal/identity"
	"github.com/park285/chess-duel-bot/internal/msgcat"
	"github.com/park285/chess-duel-bot/internal/profile"
)

const commandTimeout = 15 * time.Second

type bot struct {
	cfg      *appcfg.AppConfig
	client   *gateway.Client
	notifier *gateway.Notifier
	cat      *msgcat.Catalog
	registry *challenge.Registry
	duels    *duel.Manager
	profiles *profile.Store
	resolver *identity.Resolver
	logger   *zap.Logger
}

func (b *bot) handle(msg *gateway.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Msg), b.cfg.BotPrefix))
	if raw == "" {
		b.reply(msg.Room, b.render("help.text", b.prefixData()))
		return
	}
	parts := strings.Fields(raw)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	sender := msg.From()
	if sender == "" {
		return
	}
	b.logger.Info("command",
		zap.String("cmd", cmd),
		zap.String("sender", sender),
		zap.String("room", msg.Room),
	)

	switch cmd {
	case "register":
		b.cmdRegister(ctx, msg, sender)
	case "challenge":
		b.cmdChallenge(ctx, msg, sender, args)
	case "accept":
		b.cmdAccept(ctx, msg, sender, args)
	case "decline":
		b.cmdDecline(ctx, msg, sender, args)
	case "cancel":
		b.cmdCancel(ctx, msg, sender, args)
	case "elo":
		b.cmdElo(ctx, msg, sender, args)
	case "info":
		b.cmdInfo(ctx, msg, sender, args)
	case "concede":
		b.cmdConcede(ctx, msg, sender)
	case "move", "search":
		b.pm(sender, b.render("error.not_implemented", nil))
	case "help":
		b.reply(msg.Room, b.render("help.text", b.prefixData()))
	default:
		b.reply(msg.Room, b.render("help.text", b.prefixData()))
	}
}

func (b *bot) cmdRegister(ctx context.Context, msg *gateway.Message, sender string) {
	err := b.profiles.Register(ctx, sender)
	if errors.Is(err, profile.ErrAlreadyRegistered) {
		b.pm(sender, b.render("register.already", map[string]any{"User": sender}))
		return
	}
	if err != nil {
		b.fail(msg.Room, err)
		return
	}
	b.pm(sender, b.render("register.welcome", map[string]any{
		"User":   sender,
		"Elo":    1000,
		"Prefix": b.cfg.BotPrefix,
	}))
}

func (b *bot) cmdChallenge(ctx context.Context, msg *gateway.Message, sender string, args []string) {
	if len(args) < 1 {
		b.reply(msg.Room, b.render("challenge.usage", b.prefixData()))
		return
	}
	if ok := b.requireRegistered(ctx, msg.Room, sender); !ok {
		return
	}

	opponent, err := b.resolver.Resolve(ctx, args[0])
	if err != nil {
		b.pm(sender, b.render("challenge.user_not_found", map[string]any{"Query": args[0]}))
		return
	}
	if opponent == b.cfg.BotUserID && b.cfg.BotUserID != "" {
		b.pm(sender, b.render("challenge.bot", nil))
		return
	}
	if reg, err := b.profiles.IsRegistered(ctx, opponent); err != nil {
		b.fail(msg.Room, err)
		return
	} else if !reg {
		b.pm(sender, b.render("register.opponent_not_registered", map[string]any{"Opponent": opponent}))
		return
	}

	// neither side may already be playing
	if g, err := b.duels.GetActiveGameByUser(ctx, sender); err != nil {
		b.fail(msg.Room, err)
		return
	} else if g != nil {
		b.pm(sender, b.render("challenge.challenger_in_game", nil))
		return
	}
	if g, err := b.duels.GetActiveGameByUser(ctx, opponent); err != nil {
		b.fail(msg.Room, err)
		return
	} else if g != nil {
		b.pm(sender, b.render("challenge.opponent_in_game", nil))
		return
	}

	rec, err := b.registry.Issue(sender, opponent)
	switch {
	case errors.Is(err, challenge.ErrSelfChallenge):
		b.pm(sender, b.render("challenge.self", nil))
	case errors.Is(err, challenge.ErrAlreadyChallenged):
		b.pm(sender, b.render("challenge.duplicate", map[string]any{"Opponent": opponent}))
	case err != nil:
		b.fail(msg.Room, err)
	default:
		b.pm(sender, b.render("challenge.sent", map[string]any{
			"Opponent":    opponent,
			"Prefix":      b.cfg.BotPrefix,
			"ChallengeID": rec.ChallengeID,
		}))
		b.pm(opponent, b.render("challenge.received", map[string]any{
			"Challenger":  sender,
			"Prefix":      b.cfg.BotPrefix,
			"ChallengeID": rec.ChallengeID,
		}))
	}
}

func (b *bot) cmdAccept(ctx context.Context, msg *gateway.Message, sender string, args []string) {
	if len(args) < 1 {
		b.reply(msg.Room, b.render("accept.usage", b.prefixData()))
		return
	}
	rec, err := b.registry.Take(sender, args[0])
	if err != nil {
		b.pm(sender, b.render("accept.not_found", map[string]any{"ChallengeID": args[0]}))
		return
	}

	// the challenge is already consumed; a launch failure is reported but
	// never resurrects it
	g, err := b.duels.StartFromChallenge(ctx, rec.ChallengeID, rec.ChallengerID, rec.OpponentID)
	if err != nil {
		b.logger.Error("duel_start_error",
			zap.String("challenge_id", rec.ChallengeID),
			zap.Error(err),
		)
		b.fail(msg.Room, err)
		return
	}

	b.pm(rec.OpponentID, b.render("accept.accepted", map[string]any{"Challenger": rec.ChallengerID}))
	b.pm(rec.ChallengerID, b.render("accept.accepted_by", map[string]any{"Opponent": rec.OpponentID}))
	b.reply(msg.Room, b.render("accept.starting", map[string]any{
		"Challenger": rec.ChallengerID,
		"Opponent":   rec.OpponentID,
		"GameID":     g.ID,
	}))
	b.pm(g.WhiteID, b.render("game.white", nil))
	b.pm(g.BlackID, b.render("game.black", nil))
}

func (b *bot) cmdDecline(ctx context.Context, msg *gateway.Message, sender string, args []string) {
	if len(args) < 1 {
		b.reply(msg.Room, b.render("decline.usage", b.prefixData()))
		return
	}
	rec, err := b.registry.Take(sender, args[0])
	if err != nil {
		b.pm(sender, b.render("decline.not_found", map[string]any{"ChallengeID": args[0]}))
		return
	}
	b.pm(rec.OpponentID, b.render("decline.declined", map[string]any{"Challenger": rec.ChallengerID}))
	b.pm(rec.ChallengerID, b.render("decline.declined_by", map[string]any{"Opponent": rec.OpponentID}))
}

func (b *bot) cmdCancel(ctx context.Context, msg *gateway.Message, sender string, args []string) {
	if len(args) < 1 {
		b.reply(msg.Room, b.render("cancel.usage", b.prefixData()))
		return
	}
	rec, err := b.registry.Cancel(sender, args[0])
	if err != nil {
		b.pm(sender, b.render("cancel.not_found", map[string]any{"ChallengeID": args[0]}))
		return
	}
	b.pm(rec.ChallengerID, b.render("cancel.cancelled", map[string]any{"Opponent": rec.OpponentID}))
	b.pm(rec.OpponentID, b.render("cancel.cancelled_by", map[string]any{
		"Challenger":  rec.ChallengerID,
		"ChallengeID": rec.ChallengeID,
	}))
}

func (b *bot) cmdElo(ctx context.Context, msg *gateway.Message, sender string, args []string) {
	target := sender
	query := sender
	if len(args) >= 1 {
		query = args[0]
		id, err := b.resolver.Resolve(ctx, args[0])
		if err != nil {
			b.reply(msg.Room, b.render("elo.user_not_found", map[string]any{"Query": query}))
			return
		}
		target = id
	}
	p, err := b.profiles.Get(ctx, target)
	if err != nil {
		b.fail(msg.Room, err)
		return
	}
	if p == nil {
		b.reply(msg.Room, b.render("elo.user_not_found", map[string]any{"Query": query}))
		return
	}
	b.reply(msg.Room, b.render("elo.line", map[string]any{
		"User":   target,
		"UserID": p.UserID,
		"Elo":    p.Elo,
	}))
}

func (b *bot) cmdInfo(ctx context.Context, msg *gateway.Message, sender string, args []string) {
	target := sender
	query := sender
	if len(args) >= 1 {
		query = args[0]
		id, err := b.resolver.Resolve(ctx, args[0])
		if err != nil {
			b.reply(msg.Room, b.render("info.user_not_found", map[string]any{"Query": query}))
			return
		}
		target = id
	}
	p, err := b.profiles.Get(ctx, target)
	if err != nil {
		b.fail(msg.Room, err)
		return
	}
	if p == nil {
		b.reply(msg.Room, b.render("info.user_not_found", map[string]any{"Query": query}))
		return
	}

	history := p.History
	if history == "" {
		history = "None"
	}
	winRate := "N/A"
	if r := p.WinRate(); r >= 0 {
		winRate = fmt.Sprintf("%.2f", r)
	}
	age := "N/A"
	if !p.RegisteredAt.IsZero() {
		age = formatDuration(time.Since(p.RegisteredAt))
	}
	b.reply(msg.Room, b.render("info.summary", map[string]any{
		"User":    target,
		"Elo":     p.Elo,
		"History": history,
		"Wins":    p.Wins,
		"Loses":   p.Loses,
		"Ties":    p.Ties,
		"WinRate": winRate,
		"Age":     age,
	}))
}

func (b *bot) cmdConcede(ctx context.Context, msg *gateway.Message, sender string) {
	g, err := b.duels.Resign(ctx, sender)
	if errors.Is(err, duel.ErrGameNotActive) {
		b.pm(sender, b.render("game.no_active", nil))
		return
	}
	if err != nil {
		b.fail(msg.Room, err)
		return
	}
	if rerr := b.profiles.RecordResult(ctx, g.Winner, sender, false); rerr != nil {
		b.logger.Error("record_result_error",
			zap.String("game_id", g.ID),
			zap.Error(rerr),
		)
	}
	b.pm(sender, b.render("game.conceded", map[string]any{"Opponent": g.Winner}))
	b.pm(g.Winner, b.render("game.conceded_by", map[string]any{"Opponent": sender}))
}

// notifyExpired tells both parties about the timeout. Each PM goes out on
// its own goroutine so an unreachable challenger never delays the opponent's
// notice.
func (b *bot) notifyExpired(rec challenge.Record) {
	go b.pm(rec.ChallengerID, b.render("expire.challenger", map[string]any{
		"Opponent":    rec.OpponentID,
		"ChallengeID": rec.ChallengeID,
	}))
	go b.pm(rec.OpponentID, b.render("expire.opponent", map[string]any{
		"Challenger":  rec.ChallengerID,
		"ChallengeID": rec.ChallengeID,
	}))
}

func (b *bot) requireRegistered(ctx context.Context, room, userID string) bool {
	ok, err := b.profiles.IsRegistered(ctx, userID)
	if err != nil {
		b.fail(room, err)
		return false
	}
	if !ok {
		b.pm(userID, b.render("register.not_registered", b.prefixData()))
		return false
	}
	return true
}

func (b *bot) render(key string, data any) string {
	return b.cat.RenderOr(key, data, "Something went wrong")
}

func (b *bot) prefixData() map[string]any {
	return map[string]any{"Prefix": b.cfg.BotPrefix}
}

func (b *bot) reply(room, text string) {
	b.notifier.Room(room, text)
}

func (b *bot) pm(userID, text string) {
	b.notifier.Direct(userID, text)
}

func (b *bot) fail(room string, err error) {
	b.logger.Error("command_error", zap.Error(err))
	b.reply(room, b.render("error.generic", map[string]any{"Err": err.Error()}))
}

// formatDuration renders an age the way players read it, largest two units
// only.
func formatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	mins := secs / 60
	hours := mins / 60
	days := hours / 24
	switch {
	case days > 0:
		return fmt.Sprintf("%d days and %d hours", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%d hours and %d minutes", hours, mins%60)
	case mins > 0:
		return fmt.Sprintf("%d minutes and %d seconds", mins, secs%60)
	default:
		return fmt.Sprintf("%d seconds", secs)
	}
}
