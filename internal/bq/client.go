// Package bq wraps the BigQuery client behind the three operations the tool
// surface needs: run a read query, enumerate tables, fetch a table's DDL.
package bq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Config struct {
	Project  string
	Location string
	KeyFile  string
	// Datasets narrows ListTables scanning to the named datasets. Empty
	// means every dataset in the project is scanned.
	Datasets []string
}

type Client struct {
	bq       *bigquery.Client
	datasets []string
	logger   *slog.Logger
}

// NewClient resolves credentials and constructs the BigQuery client. Both
// steps happen exactly once, at startup; any failure here must abort the
// process.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("project is required")
	}
	if cfg.Location == "" {
		return nil, fmt.Errorf("location is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	creds, err := ResolveCredentials(ctx, cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	client, err := bigquery.NewClient(ctx, cfg.Project, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating BigQuery client: %w", err)
	}
	client.Location = cfg.Location

	logger.Info("BigQuery client ready",
		"project", cfg.Project,
		"location", cfg.Location,
		"key_file", cfg.KeyFile != "",
	)

	return &Client{bq: client, datasets: cfg.Datasets, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.bq.Close()
}

// ExecuteQuery runs the query and materializes every row as a column→value
// map.
func (c *Client) ExecuteQuery(ctx context.Context, query string) ([]map[string]any, error) {
	c.logger.Debug("executing query", "query", query)
	q := c.bq.Query(query)
	return c.collect(ctx, q)
}

// ListTables enumerates tables as dataset.table identifiers. When the
// client was configured with a dataset list only those datasets are
// scanned; otherwise every dataset in the project is.
func (c *Client) ListTables(ctx context.Context) ([]string, error) {
	datasetIDs := c.datasets
	if len(datasetIDs) == 0 {
		it := c.bq.Datasets(ctx)
		for {
			ds, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("listing datasets: %w", err)
			}
			datasetIDs = append(datasetIDs, ds.DatasetID)
		}
	}

	var tables []string
	for _, id := range datasetIDs {
		it := c.bq.Dataset(id).Tables(ctx)
		for {
			tbl, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("listing tables in %s: %w", id, err)
			}
			tables = append(tables, tbl.DatasetID+"."+tbl.TableID)
		}
	}
	c.logger.Debug("listed tables", "datasets", len(datasetIDs), "tables", len(tables))
	return tables, nil
}

// DescribeTable fetches the table's DDL from INFORMATION_SCHEMA. The
// reference may be dataset.table or project.dataset.table.
func (c *Client) DescribeTable(ctx context.Context, tableRef string) ([]map[string]any, error) {
	parts := strings.Split(tableRef, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, fmt.Errorf("invalid table reference: %s", tableRef)
	}
	datasetPath := strings.Join(parts[:len(parts)-1], ".")
	tableID := parts[len(parts)-1]
	// datasetPath is interpolated into a quoted identifier below; a backtick
	// would break out of the quoting.
	if strings.ContainsRune(datasetPath, '`') {
		return nil, fmt.Errorf("invalid table reference: %s", tableRef)
	}

	q := c.bq.Query(fmt.Sprintf(
		"SELECT ddl FROM `%s`.INFORMATION_SCHEMA.TABLES WHERE table_name = @table_name",
		datasetPath,
	))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "table_name", Value: tableID},
	}
	return c.collect(ctx, q)
}

func (c *Client) collect(ctx context.Context, q *bigquery.Query) ([]map[string]any, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(row))
		for k, v := range row {
			rec[k] = v
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
