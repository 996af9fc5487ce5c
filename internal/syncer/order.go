package syncer

import (
	"context"
	"fmt"
	"sort"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/notify"
)

// Orderer операция API для порядка задач в бэклоге.
type Orderer interface {
	UpdateOrder(ctx context.Context, id string, direction models.MoveDirection) ([]models.Issue, error)
}

// MoveOrder сдвигает задачу в бэклоге. Сервер возвращает задачи с новым порядком,
// они подменяют локальные версии, после чего коллекция сортируется по order.
func MoveOrder(ctx context.Context, remote Orderer, c *Collection, id string, direction models.MoveDirection) error {
	if !direction.IsValid() {
		return fmt.Errorf("move order of %s: invalid direction %q", id, direction)
	}

	changed, err := remote.UpdateOrder(ctx, id, direction)
	if err != nil {
		c.notifier.Error(ctx, notify.ErrorText(err, "Failed to change order"))
		return fmt.Errorf("move order of %s: %w", id, err)
	}

	byID := make(map[string]models.Issue, len(changed))
	for _, issue := range changed {
		byID[issue.ID] = issue
	}

	c.Mutate(func(prev []models.Issue) []models.Issue {
		for i := range prev {
			if issue, ok := byID[prev[i].ID]; ok {
				prev[i] = issue
			}
		}
		sort.SliceStable(prev, func(i, j int) bool {
			return prev[i].Order < prev[j].Order
		})
		return prev
	})

	c.logger.Debug("Issue order changed", "issue_id", id, "direction", direction, "changed", len(changed))
	return nil
}
