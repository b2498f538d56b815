// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package manager

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/rapidaai/streamhub/internal/bus"
)

var validate = validator.New()

// DecodeCommand maps a bus payload onto a typed command struct
// (mapstructure tags) and validates it (validator tags). Numeric payload
// values are weakly typed, so JSON-ish floats decode into int fields.
func DecodeCommand(payload bus.Payload, out interface{}) error {
	if err := mapstructure.WeakDecode(map[string]interface{}(payload), out); err != nil {
		return fmt.Errorf("invalid command payload: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid command payload: %w", err)
	}
	return nil
}
