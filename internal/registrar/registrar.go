// Package registrar implements the Application Registrar: it reacts
// to configuration-store hset events and wires each newly discovered
// application into the query processor, the HTTP frontend, and the
// ZMQ frontend.
package registrar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clipper-ml/clipper/internal/appconfig"
	"github.com/clipper-ml/clipper/internal/httpapi"
	"github.com/clipper-ml/clipper/internal/logging"
	"github.com/clipper-ml/clipper/internal/query"
	"github.com/clipper-ml/clipper/internal/types"
	"github.com/clipper-ml/clipper/internal/zmqfrontend"
)

const logComponent = "registrar"

// Registrar owns the startup-time reaction to application
// (re)registration events.
type Registrar struct {
	config    *appconfig.Client
	processor *query.Processor
	http      *httpapi.Server
	zmq       *zmqfrontend.Frontend

	mu       sync.Mutex
	accepted map[string]bool
}

// New constructs a Registrar wired to the process-wide processor and
// both frontends.
func New(config *appconfig.Client, processor *query.Processor, http *httpapi.Server, zmq *zmqfrontend.Frontend) *Registrar {
	return &Registrar{
		config:    config,
		processor: processor,
		http:      http,
		zmq:       zmq,
		accepted:  make(map[string]bool),
	}
}

// Run subscribes to the configuration store's change feed and blocks
// until ctx is canceled or the subscription connection drops.
func (r *Registrar) Run(ctx context.Context) error {
	return r.config.SubscribeToApplicationChanges(ctx, func(name, event string) {
		if event != "hset" {
			return
		}
		r.onApplicationChanged(ctx, name)
	})
}

func (r *Registrar) onApplicationChanged(ctx context.Context, name string) {
	r.mu.Lock()
	if r.accepted[name] {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	fields, err := r.config.GetApplicationByKey(ctx, name)
	if err != nil {
		logging.Infof(logComponent, "failed to read application %q: %v", name, err)
		return
	}

	app, err := appconfig.ParseApplication(name, fields)
	if err != nil {
		// A malformed record is not fatal to the process: it is
		// logged and the registrar keeps listening for subsequent
		// events, including a corrected rewrite of the same key.
		logging.Infof(logComponent, "rejecting malformed application record %q: %v", name, err)
		return
	}

	if err := r.processor.InitApplicationState(app); err != nil {
		logging.Infof(logComponent, "failed to initialize state for application %q: %v", name, err)
		return
	}

	r.mu.Lock()
	if r.accepted[name] {
		r.mu.Unlock()
		return
	}
	r.accepted[name] = true
	r.mu.Unlock()

	r.http.RegisterApplication(app)
	r.zmq.AddApplication(app.Name, r.zmqDispatchFunc(app))

	logging.Infof(logComponent, "registered application %q (policy=%s, candidates=%d)", app.Name, app.Policy, len(app.CandidateModels))
}

// zmqDispatchFunc builds the add_application callback for app: it
// turns a decoded ZMQ request into a Query, predicts, and enqueues the
// response once the future resolves.
func (r *Registrar) zmqDispatchFunc(app types.Application) zmqfrontend.DispatchFunc {
	return func(req zmqfrontend.FrontendRequest) {
		deadline := time.Now().Add(time.Duration(app.LatencySLOMicros) * time.Microsecond)
		q := types.Query{
			Application:      app.Name,
			UserID:           fmt.Sprintf("zmq-client-%d", req.ClientID),
			Input:            req.Input,
			DeadlineUnixNano: deadline.UnixNano(),
			Policy:           app.Policy,
			Candidates:       app.CandidateModels,
			Lineage:          req.Lineage,
		}

		future, err := r.processor.Predict(context.Background(), q, app.DefaultOutput)
		if err != nil {
			logging.Debugf(logComponent, "predict rejected for application %q: %v", app.Name, err)
			r.zmq.ReleaseSlot(req.ArenaSlot)
			return
		}

		future.OnComplete(func(resp types.Response) {
			r.zmq.SendResponse(req.ClientID, zmqfrontend.WireResponse{
				RequestID: req.RequestID,
				Output:    resp.Output,
				Lineage:   resp.Lineage,
			}, req.ArenaSlot)
		})
	}
}
