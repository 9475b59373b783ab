package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/swaggest/jsonschema-go"
)

// GenericToolHandler is a type-safe handler function
type GenericToolHandler[TInput any, TOutput any] func(ctx context.Context, input TInput) (TOutput, error)

// GenericPreviewHandler renders a human readable preview of a call.
type GenericPreviewHandler[TInput any] func(ctx context.Context, input TInput) (string, error)

// GenericTool is a type-safe tool whose parameter schema is reflected from TInput.
type GenericTool[TInput any, TOutput any] struct {
	Type        string
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Handler     GenericToolHandler[TInput, TOutput]
	PreviewFunc GenericPreviewHandler[TInput]
}

// GetType returns the tool type (always "function" for now)
func (gt *GenericTool[TInput, TOutput]) GetType() string {
	return gt.Type
}

// GetName returns the tool's name
func (gt *GenericTool[TInput, TOutput]) GetName() string {
	return gt.Name
}

// GetDescription returns the tool's description
func (gt *GenericTool[TInput, TOutput]) GetDescription() string {
	return gt.Description
}

// GetParameters returns the JSON schema for the tool's parameters
func (gt *GenericTool[TInput, TOutput]) GetParameters() *jsonschema.Schema {
	return gt.Schema
}

// Execute decodes the arguments, runs the handler and encodes its output.
// Bad input and handler failures are reported as error responses, not Go errors.
func (gt *GenericTool[TInput, TOutput]) Execute(ctx context.Context, call *aisdk.ToolCall) (*aisdk.ToolResponse, error) {
	input, errResp := gt.decode(call)
	if errResp != nil {
		return errResp, nil
	}

	output, err := gt.Handler(ctx, input)
	if err != nil {
		return aisdk.NewErrorToolResponse(err.Error()), nil
	}

	content, err := json.Marshal(output)
	if err != nil {
		return aisdk.NewErrorToolResponse(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}

	return &aisdk.ToolResponse{
		Type:    "success",
		Content: content,
	}, nil
}

// Preview implements Previewer. Tools without a preview function describe the raw arguments.
func (gt *GenericTool[TInput, TOutput]) Preview(ctx context.Context, call *aisdk.ToolCall) (string, error) {
	if gt.PreviewFunc == nil {
		return fmt.Sprintf("%s %s", gt.Name, string(call.Function.Arguments)), nil
	}
	input, errResp := gt.decode(call)
	if errResp != nil {
		return "", fmt.Errorf("%s", errResp.Content)
	}
	return gt.PreviewFunc(ctx, input)
}

func (gt *GenericTool[TInput, TOutput]) decode(call *aisdk.ToolCall) (TInput, *aisdk.ToolResponse) {
	var input TInput
	args := call.Function.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return input, aisdk.NewErrorToolResponse(fmt.Sprintf("failed to parse input: %v", err))
	}
	if err := gt.validateRequired(input); err != nil {
		return input, aisdk.NewErrorToolResponse(fmt.Sprintf("validation failed: %v", err))
	}
	return input, nil
}

// validateRequired checks that required fields are not empty
func (gt *GenericTool[TInput, TOutput]) validateRequired(input TInput) error {
	if gt.Schema == nil || len(gt.Schema.Required) == 0 {
		return nil
	}

	val := reflect.Indirect(reflect.ValueOf(input))
	if !val.IsValid() {
		return fmt.Errorf("input is empty")
	}
	typ := val.Type()

	for _, requiredField := range gt.Schema.Required {
		found := false
		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			fieldName := strings.Split(field.Tag.Get("json"), ",")[0]
			if fieldName != requiredField {
				continue
			}
			found = true
			if val.Field(i).IsZero() {
				return fmt.Errorf("required field '%s' is missing", requiredField)
			}
			break
		}
		if !found {
			return fmt.Errorf("required field '%s' not found in struct", requiredField)
		}
	}

	return nil
}

// NewGenericTool creates a new generic tool with automatic schema generation
func NewGenericTool[TInput any, TOutput any](name, description string, handler GenericToolHandler[TInput, TOutput]) (*GenericTool[TInput, TOutput], error) {
	var input TInput
	inputType := reflect.TypeOf(input)
	if inputType == nil {
		return nil, fmt.Errorf("tool input type must be a struct")
	}
	if inputType.Kind() == reflect.Ptr {
		inputType = inputType.Elem()
	}
	if inputType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tool input type must be a struct, got %s", inputType.Kind())
	}

	reflector := jsonschema.Reflector{}
	schema, err := reflector.Reflect(input)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	return &GenericTool[TInput, TOutput]{
		Type:        "function",
		Name:        name,
		Description: description,
		Schema:      &schema,
		Handler:     handler,
	}, nil
}

// WithPreview attaches a preview renderer to the tool.
func (gt *GenericTool[TInput, TOutput]) WithPreview(fn GenericPreviewHandler[TInput]) *GenericTool[TInput, TOutput] {
	gt.PreviewFunc = fn
	return gt
}

var (
	_ Tool      = (*GenericTool[struct{}, struct{}])(nil)
	_ Previewer = (*GenericTool[struct{}, struct{}])(nil)
)
