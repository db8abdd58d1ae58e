package postgresengine

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

//go:embed schema.sql
var schemaSQL string

var schemaTemplate = template.Must(template.New("schema").Parse(schemaSQL))

// SchemaStatements renders the DDL for the configured table names, one statement per element.
func (s *Store) SchemaStatements() ([]string, error) {
	var rendered bytes.Buffer

	err := schemaTemplate.Execute(&rendered, struct {
		Inventory   string
		Obligations string
	}{
		Inventory:   s.inventoryTableName,
		Obligations: s.obligationTableName,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering schema: %w", err)
	}

	statements := make([]string, 0)
	for _, stmt := range strings.Split(rendered.String(), ";") {
		if query := strings.TrimSpace(stmt); query != "" {
			statements = append(statements, query)
		}
	}

	return statements, nil
}

// EnsureSchema creates the inventory and obligation tables with their constraints and indexes
// if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements, err := s.SchemaStatements()
	if err != nil {
		return err
	}

	for _, query := range statements {
		if _, execErr := s.db.Exec(ctx, query); execErr != nil {
			s.logError(ctx, logMsgSchemaStatementFailed, execErr, logAttrQuery, query)
			return errors.Join(admission.ErrWriteFailed, fmt.Errorf("schema statement failed: %w", execErr))
		}
	}

	s.logInfo(ctx, logMsgSchemaEnsured, logAttrStatements, len(statements))

	return nil
}
