package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// DBFault is the server-side detail a postgres driver attaches to a failed
// statement. Both pgx and lib/pq errors normalize to it.
type DBFault struct {
	SQLState   string `json:"sqlstate"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// DBFaultOf digs the first postgres error out of err's chain.
func DBFaultOf(err error) *DBFault {
	if pgErr := (*pgconn.PgError)(nil); stdErrors.As(err, &pgErr) {
		return &DBFault{
			SQLState:   pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
		}
	}
	if pqErr := (*pq.Error)(nil); stdErrors.As(err, &pqErr) {
		return &DBFault{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
		}
	}
	return nil
}

// Diagnosis is the log-friendly view of an error chain.
type Diagnosis struct {
	Message string
	Code    Code
	Chain   []string
	DB      *DBFault
}

// Diagnose walks err once and collects its typed code, the wrapped layers
// and any database fault.
func Diagnose(err error) Diagnosis {
	if err == nil {
		return Diagnosis{}
	}
	d := Diagnosis{Message: err.Error(), DB: DBFaultOf(err)}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for layer := err; layer != nil; layer = stdErrors.Unwrap(layer) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T", layer))
	}
	return d
}

// Notable reports whether the diagnosis carries more than the message.
func (d Diagnosis) Notable() bool {
	return d.Code != "" || d.DB != nil
}

// Fields flattens the diagnosis into log fields, skipping empty parts.
func (d Diagnosis) Fields() map[string]any {
	fields := map[string]any{}
	if d.Message != "" {
		fields["error"] = d.Message
	}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if d.DB != nil {
		fields["db_sqlstate"] = d.DB.SQLState
		if d.DB.Constraint != "" {
			fields["db_constraint"] = d.DB.Constraint
		}
		if d.DB.Detail != "" {
			fields["db_detail"] = d.DB.Detail
		}
	}
	return fields
}
