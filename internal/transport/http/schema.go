package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const maxBodyBytes = 64 << 10

const backtestRequestSchema = `{
  "type": "object",
  "required": ["symbol", "start_date", "end_date"],
  "properties": {
    "symbol": {"type": "string", "minLength": 1, "maxLength": 32},
    "start_date": {"type": "string", "minLength": 10},
    "end_date": {"type": "string", "minLength": 10},
    "position_size_pct": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "use_stop_loss": {"type": "boolean"},
    "use_take_profit": {"type": "boolean"},
    "min_confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

const presetRequestSchema = `{
  "type": "object",
  "properties": {
    "symbol": {"type": "string", "maxLength": 32},
    "symbols": {"type": "array", "items": {"type": "string", "minLength": 1, "maxLength": 32}},
    "timeframe": {"type": "string", "maxLength": 4},
    "min_confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

const snapshotRequestSchema = `{
  "type": "object",
  "required": ["symbols"],
  "properties": {
    "symbols": {"type": "array", "items": {"type": "string"}}
  }
}`

type requestSchemas struct {
	backtest *jsonschema.Schema
	preset   *jsonschema.Schema
	snapshot *jsonschema.Schema
}

func compileRequestSchemas() (*requestSchemas, error) {
	bt, err := compileSchema("backtest.json", backtestRequestSchema)
	if err != nil {
		return nil, err
	}
	preset, err := compileSchema("preset.json", presetRequestSchema)
	if err != nil {
		return nil, err
	}
	snap, err := compileSchema("snapshot.json", snapshotRequestSchema)
	if err != nil {
		return nil, err
	}
	return &requestSchemas{backtest: bt, preset: preset, snapshot: snap}, nil
}

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("加载 schema %s 失败: %w", name, err)
	}
	return compiler.Compile(name)
}

// bindValidated 先按 schema 校验原始 JSON，再解码到 dst。
func bindValidated(c *gin.Context, schema *jsonschema.Schema, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		return err
	}
	if len(raw) > maxBodyBytes {
		return errors.New("请求体过大")
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("请求体不是合法 JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("参数校验失败: %s", leafMessage(verr))
		}
		return err
	}
	return json.Unmarshal(raw, dst)
}

// leafMessage 取最深一层的校验错误，定位到具体字段。
func leafMessage(verr *jsonschema.ValidationError) string {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	loc := verr.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + verr.Message
}
