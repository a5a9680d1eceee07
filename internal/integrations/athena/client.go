package athena

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
)

// State is the engine-reported lifecycle state of one query execution.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether the engine will not change this state again.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Status pairs a state with the engine's reason for reaching it, populated
// for FAILED and CANCELLED.
type Status struct {
	State  State
	Reason string
}

// ResultPage is one normalized page of query output. Columns come from the
// result metadata; Rows map column name to the cell's string value.
type ResultPage struct {
	Columns []string
	Rows    []map[string]string
}

// athenaAPI is the minimal Athena interface required by Client.
// *athena.Client from aws-sdk-go-v2 satisfies this interface.
type athenaAPI interface {
	StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

// Client wraps Athena for one database/workgroup pair.
type Client struct {
	api            athenaAPI
	database       string
	workgroup      string
	outputLocation string
}

// New creates a Client. outputLocation is the s3:// prefix Athena writes its
// own result files under; per-conversation subkeys are appended by StartQuery.
func New(api athenaAPI, database, workgroup, outputLocation string) (*Client, error) {
	if api == nil {
		return nil, errors.New("athena: api must not be nil")
	}
	if strings.TrimSpace(database) == "" {
		return nil, errors.New("athena: database must not be empty")
	}
	if strings.TrimSpace(outputLocation) == "" {
		return nil, errors.New("athena: output location must not be empty")
	}
	return &Client{
		api:            api,
		database:       database,
		workgroup:      workgroup,
		outputLocation: strings.TrimRight(outputLocation, "/"),
	}, nil
}

// StartQuery submits sql for execution and returns the engine's execution ID.
// userID/conversationID scope the engine-side output prefix.
func (c *Client) StartQuery(ctx context.Context, sql, userID, conversationID string) (string, error) {
	if strings.TrimSpace(sql) == "" {
		return "", errors.New("athena: sql must not be empty")
	}

	in := &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &types.QueryExecutionContext{
			Database: aws.String(c.database),
		},
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: aws.String(fmt.Sprintf("%s/%s/%s/", c.outputLocation, userID, conversationID)),
		},
	}
	if c.workgroup != "" {
		in.WorkGroup = aws.String(c.workgroup)
	}

	out, err := c.api.StartQueryExecution(ctx, in)
	if err != nil {
		return "", fmt.Errorf("athena: start query execution: %w", err)
	}
	if out == nil || out.QueryExecutionId == nil || *out.QueryExecutionId == "" {
		return "", errors.New("athena: start query execution returned no id")
	}
	return *out.QueryExecutionId, nil
}

// QueryStatus fetches the current execution state for an execution ID.
func (c *Client) QueryStatus(ctx context.Context, executionID string) (Status, error) {
	out, err := c.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(executionID),
	})
	if err != nil {
		return Status{}, fmt.Errorf("athena: get query execution: %w", err)
	}
	if out == nil || out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return Status{}, errors.New("athena: get query execution returned no status")
	}

	st := Status{State: State(out.QueryExecution.Status.State)}
	if reason := out.QueryExecution.Status.StateChangeReason; reason != nil {
		st.Reason = *reason
	}
	return st, nil
}

// QueryResults fetches up to maxRows data rows for a succeeded execution.
// Athena returns the column header as the first row of the result set; it is
// split off into Columns and never appears in Rows.
func (c *Client) QueryResults(ctx context.Context, executionID string, maxRows int32) (ResultPage, error) {
	in := &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(executionID),
	}
	if maxRows > 0 {
		in.MaxResults = aws.Int32(maxRows)
	}

	out, err := c.api.GetQueryResults(ctx, in)
	if err != nil {
		return ResultPage{}, fmt.Errorf("athena: get query results: %w", err)
	}
	if out == nil || out.ResultSet == nil {
		return ResultPage{}, errors.New("athena: get query results returned no result set")
	}

	return normalizeResultSet(out.ResultSet)
}

func normalizeResultSet(rs *types.ResultSet) (ResultPage, error) {
	if rs.ResultSetMetadata == nil {
		return ResultPage{}, errors.New("athena: result set has no metadata")
	}
	columns := make([]string, 0, len(rs.ResultSetMetadata.ColumnInfo))
	for _, col := range rs.ResultSetMetadata.ColumnInfo {
		if col.Name == nil {
			return ResultPage{}, errors.New("athena: column info missing name")
		}
		columns = append(columns, *col.Name)
	}

	dataRows := rs.Rows
	if len(dataRows) > 0 {
		// First row repeats the column header.
		dataRows = dataRows[1:]
	}

	rows := make([]map[string]string, 0, len(dataRows))
	for _, row := range dataRows {
		rowData := make(map[string]string, len(columns))
		for i, datum := range row.Data {
			if i >= len(columns) {
				break
			}
			if datum.VarCharValue != nil {
				rowData[columns[i]] = *datum.VarCharValue
			} else {
				rowData[columns[i]] = ""
			}
		}
		rows = append(rows, rowData)
	}

	return ResultPage{Columns: columns, Rows: rows}, nil
}
