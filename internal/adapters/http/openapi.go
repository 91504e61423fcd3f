package httpadapter

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

//go:embed openapi.yaml
var openAPIYAML []byte

const maxJSONBodyBytes = 10 << 20

type apiSpec struct {
	doc  *openapi3.T
	json []byte
}

func loadAPISpec() (*apiSpec, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal openapi document: %w", err)
	}
	return &apiSpec{doc: doc, json: raw}, nil
}

// decodeBody reads a JSON body, validates it against the request schema of the
// named component and decodes it into out.
func (s *apiSpec) decodeBody(r *http.Request, schemaName string, out any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodyBytes+1))
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "read request body", err)
	}
	if len(raw) > maxJSONBodyBytes {
		return domain.WrapError(domain.ErrInvalidInput, "read request body", errors.New("request body is too large"))
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", errors.New("invalid json"))
	}

	schemaRef, ok := s.doc.Components.Schemas[schemaName]
	if !ok || schemaRef.Value == nil {
		return fmt.Errorf("openapi schema %s is not defined", schemaName)
	}
	if err := schemaRef.Value.VisitJSON(generic); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate request body", errors.New(schemaErrorMessage(err)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", err)
	}
	return nil
}

func schemaErrorMessage(err error) string {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if field == "" {
			return schemaErr.Reason
		}
		return field + ": " + schemaErr.Reason
	}
	return err.Error()
}
