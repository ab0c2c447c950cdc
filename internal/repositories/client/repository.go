package client

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

// Repository reads CRM clients. Clients are owned by the CRM; this service
// never writes them.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new client repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Client, error) {
	ctx, span := tracing.StartSpan(ctx, "client.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrClientNotFound
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "client_type", "created_at", "updated_at")
	sb.From("clients")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var client models.Client
	if err := database.Conn(ctx, r.db).GetContext(ctx, &client, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrClientNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get client")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get client")
	}
	return &client, nil
}
