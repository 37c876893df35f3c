package main

import (
	"classplay/internal/app"
	"classplay/internal/config"
	"classplay/internal/model"
	"classplay/internal/service"
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// seed creates a demo session in the configured store so the portal has
// something to show.
func main() {
	classID := flag.String("class", "demo-class", "class the session belongs to")
	players := flag.Int("players", 4, "number of players to join")
	game := flag.String("game", string(model.GameQuestion), "game type")
	advance := flag.Int("turns", 3, "turns to play after starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer a.Close(ctx)

	id, err := a.Sessions.CreateSession(ctx, service.CreateSessionParams{
		ClassID:     *classID,
		CreatorID:   "demo-1",
		CreatorName: "Demo Player 1",
		GameType:    model.GameType(*game),
		MaxPlayers:  max(*players, 2),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session")
	}

	for i := 2; i <= *players; i++ {
		if _, err := a.Sessions.JoinSession(ctx, id, fmt.Sprintf("demo-%d", i), fmt.Sprintf("Demo Player %d", i)); err != nil {
			log.Fatal().Err(err).Int("player", i).Msg("failed to join")
		}
	}

	if err := a.Sessions.StartSession(ctx, id); err != nil {
		log.Fatal().Err(err).Msg("failed to start session")
	}

	sess, err := a.Sessions.GetSession(ctx, id)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read session")
	}
	for i := 0; i < *advance && sess.CurrentTurn != nil; i++ {
		target := sess.PlayerByNumber(sess.CurrentTurn.Target)
		res, err := a.Turns.AdvanceTurn(ctx, id, target, model.MoveAnswer, fmt.Sprintf("demo answer %d", i+1), nil)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to advance turn")
		}
		sess.CurrentTurn = res.Turn
		log.Info().Int("asker", res.Turn.Asker).Int("target", res.Turn.Target).Msg("turn advanced")
	}

	log.Info().Str("session", id).Str("class", *classID).Msg("demo session ready")
	fmt.Println(id)
}
