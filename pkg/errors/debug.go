package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDetails is the subset of a postgres error worth logging. Both the pgx and
// lib/pq drivers are normalized into it.
type PGDetails struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Diagnostics flattens an error chain for structured request logs.
type Diagnostics struct {
	Message string
	Code    Code
	Chain   []string
	PG      *PGDetails
}

// Diagnose walks err and collects what a log line needs.
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	diag := Diagnostics{Message: err.Error()}
	if typed := As(err); typed != nil {
		diag.Code = typed.Code()
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		diag.Chain = append(diag.Chain, fmt.Sprintf("%T: %v", cur, cur))
	}
	diag.PG = postgresDetails(err)
	return diag
}

// Fields renders the diagnostics as log fields; postgres keys are omitted
// when the chain holds no driver error.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.PG != nil {
		fields["pg_code"] = d.PG.Code
		fields["pg_constraint"] = d.PG.Constraint
		fields["pg_table"] = d.PG.Table
		fields["pg_column"] = d.PG.Column
		fields["pg_detail"] = d.PG.Detail
		fields["pg_message"] = d.PG.Message
	}
	return fields
}

func postgresDetails(err error) *PGDetails {
	if pgxErr := (*pgconn.PgError)(nil); errors.As(err, &pgxErr) {
		return &PGDetails{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) {
		return &PGDetails{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
