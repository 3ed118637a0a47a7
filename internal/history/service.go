package history

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/event"
	"github.com/victornm/songparty/internal/game"
)

const codeUniqueViolation = "23505"

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

// Service keeps the results of finished rounds and games after the room itself expired.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{
		db: c.DB,
	}

	event.On(c.EventBus, domain.EventNameRoundScored, func(ctx context.Context, e domain.EventRoundScored) error {
		return ignoreRecorded(ctx, s.RecordRound(ctx, e))
	})
	event.On(c.EventBus, domain.EventNameGameFinished, func(ctx context.Context, e domain.EventGameFinished) error {
		return ignoreRecorded(ctx, s.RecordGame(ctx, e))
	})

	return s
}

func ignoreRecorded(ctx context.Context, err error) error {
	if errors.HasCode(err, errors.CodeAlreadyExists) {
		slog.InfoContext(ctx, "history: already recorded", "error", err)
		return nil
	}

	return err
}

// RecordRound stores each guest's points for the scored round. Recording a round twice fails with AlreadyExists.
func (s *Service) RecordRound(ctx context.Context, e domain.EventRoundScored) error {
	const stmt = `
INSERT INTO round_results (room_id, round_id, player_id, player_name, question, points, total, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	r := e.Room
	now := time.Now().UTC()

	b := &pgx.Batch{}
	for _, p := range r.Guests() {
		b.Queue(stmt, r.RoomID, r.RoundID, p.ID, p.Name, r.CurrentQuestion(), e.Deltas[p.ID], p.Score, now)
	}

	return s.inTx(ctx, b)
}

// RecordGame stores the final standings.
func (s *Service) RecordGame(ctx context.Context, e domain.EventGameFinished) error {
	const stmt = `
INSERT INTO game_results (room_id, player_id, player_name, rank, score, finish_time)
VALUES ($1, $2, $3, $4, $5, $6);`

	now := time.Now().UTC()

	b := &pgx.Batch{}
	for i, entry := range game.Rank(&e.Room) {
		b.Queue(stmt, e.Room.RoomID, entry.PlayerID, entry.Name, i+1, entry.Score, now)
	}

	return s.inTx(ctx, b)
}

func (s *Service) inTx(ctx context.Context, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, b).Close()
	})

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists, errors.WithCause(err))
	}

	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	return nil
}

type RoundResult struct {
	RoundID    int       `json:"roundId"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Question   string    `json:"question"`
	Points     int       `json:"points"`
	Total      int       `json:"total"`
	CreateTime time.Time `json:"createTime"`
}

type Standing struct {
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Rank       int       `json:"rank"`
	Score      int       `json:"score"`
	FinishTime time.Time `json:"finishTime"`
}

type ListResultsRequest struct {
	RoomID string
}

type ListResultsResponse struct {
	Rounds []RoundResult `json:"rounds"`
	// Standings is empty until the game finished.
	Standings []Standing `json:"standings"`
}

func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) (*ListResultsResponse, error) {
	const roundsStmt = `
SELECT round_id, player_id, player_name, question, points, total, create_time
FROM round_results
WHERE room_id = $1
ORDER BY round_id, total DESC, player_id;`

	const standingsStmt = `
SELECT player_id, player_name, rank, score, finish_time
FROM game_results
WHERE room_id = $1
ORDER BY rank;`

	rows, err := s.db.Query(ctx, roundsStmt, req.RoomID)
	if err != nil {
		return nil, err
	}

	rounds, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (RoundResult, error) {
		var rr RoundResult
		err := r.Scan(&rr.RoundID, &rr.PlayerID, &rr.PlayerName, &rr.Question, &rr.Points, &rr.Total, &rr.CreateTime)
		return rr, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, standingsStmt, req.RoomID)
	if err != nil {
		return nil, err
	}

	standings, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Standing, error) {
		var st Standing
		err := r.Scan(&st.PlayerID, &st.PlayerName, &st.Rank, &st.Score, &st.FinishTime)
		return st, err
	})
	if err != nil {
		return nil, err
	}

	if len(rounds) == 0 && len(standings) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("no results: room=%s", req.RoomID))
	}

	return &ListResultsResponse{Rounds: rounds, Standings: standings}, nil
}
