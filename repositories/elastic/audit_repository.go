// Package elastic indexes audit entries into Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"go.uber.org/zap"
)

// AuditRepository indexes one document per audit entry. Documents carry
// ttlExpiry; deletion is left to the index lifecycle policy.
type AuditRepository struct {
	client *elasticsearch.Client
	index  string
	logger *zap.Logger
}

// NewClient creates an Elasticsearch client
func NewClient(cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

// NewAuditRepository creates an audit repository writing to index
func NewAuditRepository(client *elasticsearch.Client, index string, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{client: client, index: index, logger: logger}
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)

// Put indexes entry using its ID as the document ID. A document that already
// exists under that ID is the same entry and counts as written.
func (r *AuditRepository) Put(ctx context.Context, entry *models.AuditLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: entry.ID.String(),
		Body:       bytes.NewReader(data),
		OpType:     "create",
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("failed to index audit entry: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		r.logger.Debug("audit entry already indexed", zap.String("id", entry.ID.String()))
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("error indexing audit entry: %s", res.String())
	}

	r.logger.Debug("audit entry indexed",
		zap.String("index", r.index),
		zap.String("id", entry.ID.String()))
	return nil
}

// HealthCheck pings the cluster
func (r *AuditRepository) HealthCheck(ctx context.Context) error {
	res, err := r.client.Ping(r.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch health check failed: %s", res.Status())
	}
	return nil
}
