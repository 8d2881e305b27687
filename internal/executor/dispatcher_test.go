package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/domain"
	"github.com/xela07ax/stockgate/internal/infra"
)

type staticIssuer struct{ token string }

func (s staticIssuer) Issue(domain.Actor) (string, error) { return s.token, nil }

type DispatcherSuite struct {
	suite.Suite
	handler http.HandlerFunc
	server  *httptest.Server
	gauge   *prometheus.GaugeVec
	calls   atomic.Int32
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.calls.Store(0)
	s.handler = nil
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.handler(w, r)
	}))
	s.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "breaker"}, []string{"target"})
}

func (s *DispatcherSuite) TearDownTest() {
	s.server.Close()
}

func (s *DispatcherSuite) dispatcher(timeout time.Duration) *HTTPDispatcher {
	return NewHTTPDispatcher(s.server.Client(), staticIssuer{token: "internal-token"}, Options{
		Routes:        map[string]string{domain.EntityProduct: s.server.URL},
		Timeout:       timeout,
		CBMaxRequests: 1,
		CBInterval:    time.Minute,
		CBTimeout:     time.Minute,
		CBFailures:    3,
		BreakerState:  s.gauge,
	}, zap.NewNop())
}

func command() domain.Command {
	return domain.Command{
		RequestType:    domain.RequestProductCreate,
		ActionData:     `{"inventory_code":"4321","name":"Drill","category_id":1,"department_id":2}`,
		Actor:          domain.Actor{ID: "admin-1", Name: "Admin"},
		IdempotencyKey: "approval-7",
	}
}

// -----------------------------------------------------------------------------
// Success path
// -----------------------------------------------------------------------------

func (s *DispatcherSuite) TestSendsCommandWithInternalCredentials() {
	var got ExecuteRequest
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal(ExecutePath, r.URL.Path)
		s.Equal("Bearer internal-token", r.Header.Get("Authorization"))
		s.Equal("approval-7", r.Header.Get(HeaderIdempotencyKey))
		s.Equal("trace-1", r.Header.Get(infra.HeaderTraceID))
		s.NoError(json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ExecuteResponse{Result: json.RawMessage(`{"id":11}`)})
	}

	ctx := infra.WithTraceID(context.Background(), "trace-1")
	res, err := s.dispatcher(time.Second).Dispatch(ctx, command())
	s.Require().NoError(err)
	s.JSONEq(`{"id":11}`, string(res))
	s.Equal(domain.RequestProductCreate, got.RequestType)
	s.Equal("admin-1", got.ActingUserID)
	s.Equal("Admin", got.ActingUserName)
	s.Equal(command().ActionData, got.ActionData)
}

// -----------------------------------------------------------------------------
// Failure paths
// -----------------------------------------------------------------------------

func (s *DispatcherSuite) TestRemoteErrorCarriesMessage() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"inventory code 4321 already exists"}`))
	}

	_, err := s.dispatcher(time.Second).Dispatch(context.Background(), command())
	var re *RemoteError
	s.Require().ErrorAs(err, &re)
	s.Equal(http.StatusConflict, re.Status)
	s.Contains(err.Error(), "inventory code 4321 already exists")
}

func (s *DispatcherSuite) TestTimeoutIsFailure() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}

	_, err := s.dispatcher(50*time.Millisecond).Dispatch(context.Background(), command())
	s.Require().Error(err)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Contains(err.Error(), "timed out")
}

func (s *DispatcherSuite) TestBreakerOpensOnServerErrors() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	d := s.dispatcher(time.Second)

	for range 3 {
		_, err := d.Dispatch(context.Background(), command())
		s.Require().Error(err)
	}
	_, err := d.Dispatch(context.Background(), command())
	s.ErrorIs(err, gobreaker.ErrOpenState)
	s.Equal(int32(3), s.calls.Load())
	s.Equal(float64(gobreaker.StateOpen), testutil.ToFloat64(s.gauge.WithLabelValues("product")))
}

func (s *DispatcherSuite) TestClientErrorsDoNotTripBreaker() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}
	d := s.dispatcher(time.Second)

	for range 5 {
		_, err := d.Dispatch(context.Background(), command())
		var re *RemoteError
		s.Require().True(errors.As(err, &re))
	}
	s.Equal(int32(5), s.calls.Load())
}

func (s *DispatcherSuite) TestUnknownRoute() {
	d := NewHTTPDispatcher(nil, staticIssuer{}, Options{}, zap.NewNop())
	_, err := d.Dispatch(context.Background(), command())
	s.Require().Error(err)
	s.Contains(err.Error(), "no route")
}
