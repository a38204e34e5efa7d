/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/carverauto/portprobe/pkg/logger"
)

var (
	// ErrDstMustBeNonNilPointer indicates that the destination must be a non-nil pointer.
	ErrDstMustBeNonNilPointer = errors.New("dst must be a non-nil pointer")
	// ErrDstMustBePointerToStruct indicates that the destination must be a pointer to a struct.
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")
	// ErrInvalidEnvValue is returned when a set variable cannot be parsed.
	ErrInvalidEnvValue = errors.New("invalid environment value")
)

var jsonUnmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()

// EnvConfigLoader loads configuration from environment variables named
// after json tags. Nested structs join with an underscore, so
// PORTPROBE_LOGGING_LEVEL maps to cfg.Logging.Level.
type EnvConfigLoader struct {
	logger logger.Logger
	prefix string
}

// NewEnvConfigLoader creates a new environment variable config loader.
func NewEnvConfigLoader(log logger.Logger, prefix string) *EnvConfigLoader {
	return &EnvConfigLoader{
		logger: log,
		prefix: prefix,
	}
}

// Load implements ConfigLoader. Unset variables leave dst untouched; a
// variable that is set but malformed is an error.
func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	if jsonConfig := os.Getenv(e.prefix + "CONFIG_JSON"); jsonConfig != "" {
		if err := json.Unmarshal([]byte(jsonConfig), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %sCONFIG_JSON: %w", e.prefix, err)
		}
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	_, err := e.loadStruct(v, e.prefix)

	return err
}

// loadStruct reports whether any field was set.
func (e *EnvConfigLoader) loadStruct(v reflect.Value, prefix string) (bool, error) {
	t := v.Type()
	touched := false

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		jsonTag := fieldType.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}

		name, _, _ := strings.Cut(jsonTag, ",")
		envName := prefix + strings.ToUpper(name)

		set, err := e.setField(field, envName)
		if err != nil {
			return touched, err
		}

		touched = touched || set
	}

	return touched, nil
}

func (e *EnvConfigLoader) setField(field reflect.Value, envName string) (bool, error) {
	if isNestedStruct(field) {
		return e.loadNested(field, envName+"_")
	}

	envValue, ok := os.LookupEnv(envName)
	if !ok || envValue == "" {
		return false, nil
	}

	if err := setFieldByKind(field, envValue); err != nil {
		return false, fmt.Errorf("%w for %s: %w", ErrInvalidEnvValue, envName, err)
	}

	if e.logger != nil {
		e.logger.Debug().Str("env", envName).Msg("Loaded value from environment variable")
	}

	return true, nil
}

func isNestedStruct(field reflect.Value) bool {
	if reflect.PointerTo(field.Type()).Implements(jsonUnmarshalerType) {
		return false
	}

	switch field.Kind() {
	case reflect.Struct:
		return true
	case reflect.Ptr:
		return field.Type().Elem().Kind() == reflect.Struct
	default:
		return false
	}
}

// loadNested allocates a nil pointer only when one of its variables is set.
func (e *EnvConfigLoader) loadNested(field reflect.Value, prefix string) (bool, error) {
	if field.Kind() == reflect.Struct {
		return e.loadStruct(field, prefix)
	}

	target := reflect.New(field.Type().Elem())
	if !field.IsNil() {
		target.Elem().Set(field.Elem())
	}

	set, err := e.loadStruct(target.Elem(), prefix)
	if err != nil || !set {
		return false, err
	}

	field.Set(target)

	return true, nil
}

func setFieldByKind(field reflect.Value, envValue string) error {
	if ptr := field.Addr(); ptr.Type().Implements(jsonUnmarshalerType) {
		return setJSONField(ptr.Interface().(json.Unmarshaler), envValue)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Bool:
		b, err := strconv.ParseBool(envValue)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(envValue, 10, 64)
		if err != nil {
			return err
		}

		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(envValue, 10, 64)
		if err != nil {
			return err
		}

		field.SetUint(u)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return json.Unmarshal([]byte(envValue), field.Addr().Interface())
		}

		values := strings.Split(envValue, ",")
		slice := reflect.MakeSlice(field.Type(), len(values), len(values))

		for i, v := range values {
			slice.Index(i).SetString(strings.TrimSpace(v))
		}

		field.Set(slice)
	case reflect.Map:
		return json.Unmarshal([]byte(envValue), field.Addr().Interface())
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}

	return nil
}

// setJSONField feeds raw JSON first so numbers keep their meaning, then
// retries the value as a JSON string.
func setJSONField(u json.Unmarshaler, envValue string) error {
	if err := u.UnmarshalJSON([]byte(envValue)); err == nil {
		return nil
	}

	quoted, err := json.Marshal(envValue)
	if err != nil {
		return err
	}

	return u.UnmarshalJSON(quoted)
}
