package habits

import (
	"strings"

	"github.com/julianstephens/streak/internal/cli"
	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/models"
)

type ChallengeCmd struct {
	Delete ChallengeDeleteCmd `cmd:"" help:"Delete a challenge that has no executed days."`
}

type ChallengeDeleteCmd struct {
	Name        string `arg:"" help:"Habit name."`
	ChallengeID string `arg:"" help:"Challenge ID or a unique prefix of it (see 'streak habit show')."`
}

func (c *ChallengeDeleteCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	h, err := cat.GetByName(ctx.Context(), c.Name)
	if err != nil {
		return err
	}
	id, err := matchChallenge(h, c.ChallengeID)
	if err != nil {
		return err
	}

	if _, err := cat.DeleteChallenge(ctx.Context(), h.ID, id); err != nil {
		return err
	}
	ctx.Printf("Deleted challenge %s from %s\n", shortID(id), h.Name)
	return nil
}

// matchChallenge resolves an ID prefix to exactly one challenge of h.
func matchChallenge(h *models.Habit, prefix string) (string, error) {
	const op = "challenge.delete"
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", errs.InvalidInput(op, "a challenge ID is required")
	}

	var matches []string
	for _, ch := range h.Challenges {
		if ch.ID == prefix {
			return ch.ID, nil
		}
		if strings.HasPrefix(ch.ID, prefix) {
			matches = append(matches, ch.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", errs.NotFound(op, "no challenge %q in habit %q", prefix, h.Name)
	case 1:
		return matches[0], nil
	default:
		return "", errs.InvalidInput(op, "challenge prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}
