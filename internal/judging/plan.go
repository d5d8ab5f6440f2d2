package judging

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hackathon-judging/internal/engine"
	"github.com/DoyleJ11/hackathon-judging/internal/logging"
	"github.com/DoyleJ11/hackathon-judging/internal/planner"
)

// PlanReport is a planner run as handed back to the operator. Queue can be
// edited and loaded as is.
type PlanReport struct {
	Algorithm  string      `json:"algorithm"`
	Queue      engine.Plan `json:"queue"`
	Unchosen   []string    `json:"unchosen"`
	Unassigned []string    `json:"unassigned"`
	LogPath    string      `json:"log_path,omitempty"`
}

// Plan runs the room planner over the directory. Each placement decision is
// written to a log file under logDir for the operator to review.
func (s *Service) Plan(ctx context.Context, algorithm, logDir string) (PlanReport, error) {
	entries, err := s.dir.ListTeamsWithTracks(ctx)
	if err != nil {
		return PlanReport{}, fmt.Errorf("judging: list teams: %w", err)
	}

	log, path, release, err := logging.WithFileSink(s.log, logDir, "autoqueue")
	if err != nil {
		return PlanReport{}, err
	}
	defer func() {
		if err := release(); err != nil {
			s.log.Warn("closing planner log", zap.Error(err))
		}
	}()

	log.Info("planning rooms", zap.String("algorithm", algorithm), zap.Int("teams", len(entries)))
	res, err := planner.Plan(algorithm, entries, s.ev.Tracks, s.ev.Rooms)
	if err != nil {
		log.Warn("planner failed", zap.Error(err))
		return PlanReport{}, err
	}

	for _, p := range res.Placements {
		fields := []zap.Field{zap.String("team", p.Team)}
		if p.Room != "" {
			fields = append(fields, zap.String("room", p.Room))
		}
		switch {
		case p.Room == "":
			log.Info(fmt.Sprintf("%s: %s", p.Team, p.Note), fields...)
		case p.Track == "":
			log.Info(fmt.Sprintf("%s -> %s (%s)", p.Team, p.Room, p.Note), fields...)
		default:
			log.Info(fmt.Sprintf("%s -> %s for track %s", p.Team, p.Room, p.Track), append(fields, zap.String("track", p.Track))...)
		}
	}
	for _, id := range res.Order {
		log.Info(fmt.Sprintf("room %s: %d teams", id, len(res.Rooms[id])), zap.String("room", id), zap.Int("teams", len(res.Rooms[id])))
	}
	if len(res.Unassigned) > 0 {
		log.Warn(fmt.Sprintf("%d teams could not be placed and need manual placement", len(res.Unassigned)), zap.Strings("unassigned", res.Unassigned))
	}

	return PlanReport{
		Algorithm:  algorithm,
		Queue:      res.Queue(),
		Unchosen:   nonNil(res.Unchosen),
		Unassigned: nonNil(res.Unassigned),
		LogPath:    path,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
