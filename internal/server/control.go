package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/muurk/carlink/internal/dispatch"
	"github.com/muurk/carlink/internal/gnss"
	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/protocol"
	"github.com/muurk/carlink/internal/session"
	"go.uber.org/zap"
)

const controlTimeout = 2 * time.Second

// Controller is the outbound surface exposed under /control.
// *dispatch.Dispatcher satisfies it.
type Controller interface {
	SendTouch(ctx context.Context, t dispatch.Touch) error
	SendCommand(ctx context.Context, id protocol.CommandID) error
	SetNightMode(ctx context.Context, on bool) error
	RequestKeyframe(ctx context.Context) error
	DisconnectPhone(ctx context.Context) error
}

type touchRequest struct {
	Action uint32  `json:"action"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type commandRequest struct {
	ID uint32 `json:"id"`
}

type nightRequest struct {
	On bool `json:"on"`
}

type fixRequest struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Altitude  float64   `json:"alt"`
	Speed     float64   `json:"speed"`
	Bearing   float64   `json:"bearing"`
	Accuracy  float64   `json:"accuracy"`
	Time      time.Time `json:"time"`
}

type controlResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Status) registerControl(mux *http.ServeMux) {
	if c := s.config.Control; c != nil {
		mux.HandleFunc("/control/touch", s.post(func(ctx context.Context, r *http.Request) error {
			var req touchRequest
			if err := decode(r, &req); err != nil {
				return err
			}
			return c.SendTouch(ctx, dispatch.Touch{Action: protocol.TouchAction(req.Action), X: req.X, Y: req.Y})
		}))
		mux.HandleFunc("/control/command", s.post(func(ctx context.Context, r *http.Request) error {
			var req commandRequest
			if err := decode(r, &req); err != nil {
				return err
			}
			return c.SendCommand(ctx, protocol.CommandID(req.ID))
		}))
		mux.HandleFunc("/control/night", s.post(func(ctx context.Context, r *http.Request) error {
			var req nightRequest
			if err := decode(r, &req); err != nil {
				return err
			}
			return c.SetNightMode(ctx, req.On)
		}))
		mux.HandleFunc("/control/keyframe", s.post(func(ctx context.Context, _ *http.Request) error {
			return c.RequestKeyframe(ctx)
		}))
		mux.HandleFunc("/control/disconnect", s.post(func(ctx context.Context, _ *http.Request) error {
			return c.DisconnectPhone(ctx)
		}))
	}

	if fixes := s.config.Fixes; fixes != nil {
		mux.HandleFunc("/gnss", s.post(func(_ context.Context, r *http.Request) error {
			var req fixRequest
			if err := decode(r, &req); err != nil {
				return err
			}
			if req.Time.IsZero() {
				req.Time = s.now()
			}
			select {
			case fixes <- gnss.Fix(req):
				return nil
			default:
				return errBusy
			}
		}))
	}
}

var errBusy = errors.New("gnss queue full")

type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{err}
	}
	return nil
}

func (s *Status) post(fn func(ctx context.Context, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), controlTimeout)
		defer cancel()

		err := fn(ctx, r)
		code := http.StatusOK
		var bad badRequest
		switch {
		case err == nil:
		case errors.As(err, &bad):
			code = http.StatusBadRequest
		case errors.Is(err, session.ErrNotOpen):
			code = http.StatusConflict
		case errors.Is(err, errBusy):
			code = http.StatusServiceUnavailable
		default:
			code = http.StatusUnprocessableEntity
		}
		if err != nil {
			logging.Debug("Control request failed", zap.String("path", r.URL.Path), zap.Error(err))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		res := controlResult{OK: err == nil}
		if err != nil {
			res.Error = err.Error()
		}
		_ = json.NewEncoder(w).Encode(res)
	}
}
