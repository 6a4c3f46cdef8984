package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// WriteSuccess renders {success:true, ...payload} with a 200 status.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	WriteMessage(w, status, "", data)
}

// WriteMessage renders a success body carrying a human readable message.
// Object payloads are flattened into the envelope; anything else lands under "data".
func WriteMessage(w http.ResponseWriter, status int, message string, data any) {
	body, err := successBody(message, data)
	if err != nil {
		log.Printf(`{"level":"error","msg":"failed to build response","err":"%v"}`, err)
		writeJSON(w, http.StatusInternalServerError, types.ErrorEnvelope{
			Message: pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage,
			Code:    string(pkgerrors.CodeInternal),
		})
		return
	}
	writeJSON(w, status, body)
}

func successBody(message string, data any) (map[string]any, error) {
	body := map[string]any{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data == nil {
		return body, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		fields := map[string]json.RawMessage{}
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			if k == "success" || k == "message" {
				continue
			}
			body[k] = v
		}
		return body, nil
	}
	if !bytes.Equal(trimmed, []byte("null")) {
		body["data"] = json.RawMessage(trimmed)
	}
	return body, nil
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())
	payload := types.ErrorEnvelope{
		Success: false,
		Message: typed.PublicMessage(),
		Code:    string(typed.Code()),
	}
	if meta.DetailsAllowed {
		payload.Details = typed.Details()
	}

	if logg != nil {
		fields := pkgerrors.DumpOf(err).Fields()
		if dm, ok := typed.Details().(map[string]any); ok {
			if step, ok := dm["step"]; ok {
				fields["step"] = step
			}
		}
		ctx = logg.WithFields(ctx, fields)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
