// Package services holds the business logic of the server. Every service is
// handed its *sql.DB and a repository manager explicitly; repositories are
// bound either to the pool or to a transaction per call.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
)

// fail logs a storage or programming failure and hides it behind
// common.ErrorInternal. Lost serialization races and deadlocks become
// common.ErrTransient. Errors of the public taxonomy are returned unchanged.
func fail(ctx context.Context, log logging.Logger, op string, err error) error {
	switch common.Classify(err) {
	case common.KindInternal:
		if !errors.Is(err, common.ErrorInternal) {
			log.Error(ctx, op+" failed", "error", err)
		}
		return common.ErrorInternal
	case common.KindTransient:
		log.Warn(ctx, op+" failed, retryable", "error", err)
		return common.ErrTransient
	default:
		return err
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
