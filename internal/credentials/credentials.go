// Package credentials loads the ASoC API key pair from a JSON file.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Usage is the expected file shape, printed with every load failure.
const Usage = `{"keyid": "<KEYID>", "keysecret": "<KEYSECRET>"}`

var (
	ErrUnreadable   = errors.New("credentials file cannot be read")
	ErrMalformed    = errors.New("credentials file is not valid JSON")
	ErrMissingField = errors.New("credentials file has a missing or invalid field")
)

type Credentials struct {
	KeyID     string
	KeySecret string
}

type fileFormat struct {
	KeyID     *string `json:"keyid"`
	KeySecret *string `json:"keysecret"`
}

// LoadError reports why a credentials file was rejected. Kind is one of the
// package sentinels and is matched by errors.Is.
type LoadError struct {
	Path  string
	Kind  error
	Field string
	Err   error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Path, e.Kind)
	if e.Field != "" {
		msg += fmt.Sprintf(" (%q)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + ". The file format should look like this: " + Usage
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Load(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, &LoadError{Path: path, Kind: ErrUnreadable, Err: err}
	}

	var raw fileFormat
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Credentials{}, &LoadError{Path: path, Kind: ErrMissingField, Field: typeErr.Field, Err: err}
		}
		return Credentials{}, &LoadError{Path: path, Kind: ErrMalformed, Err: err}
	}

	if raw.KeyID == nil || *raw.KeyID == "" {
		return Credentials{}, &LoadError{Path: path, Kind: ErrMissingField, Field: "keyid"}
	}
	if raw.KeySecret == nil || *raw.KeySecret == "" {
		return Credentials{}, &LoadError{Path: path, Kind: ErrMissingField, Field: "keysecret"}
	}

	return Credentials{KeyID: *raw.KeyID, KeySecret: *raw.KeySecret}, nil
}
