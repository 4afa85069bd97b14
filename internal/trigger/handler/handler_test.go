package handler_test

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"heirloom/internal/trigger"
	"heirloom/internal/trigger/handler"
	id "heirloom/pkg/domain"
	"heirloom/pkg/testutil"
)

// =============================================================================
// Trigger Handler Test Suite
// =============================================================================

type HandlerSuite struct {
	suite.Suite
	router chi.Router
	userID id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	service := trigger.NewService(trigger.NewInMemoryStore())
	h := handler.New(service, slog.Default())
	s.router = chi.NewRouter()
	h.Register(s.router)
	s.userID = id.NewUserID()
}

func (s *HandlerSuite) createTrigger(body map[string]any) handler.TriggerResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/triggers", body)
	req = testutil.WithUserID(req, s.userID.String())
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[handler.TriggerResponse](s.T(), rr)
}

func (s *HandlerSuite) TestCreate() {
	s.Run("valid request", func() {
		created := s.createTrigger(map[string]any{
			"type":     "inactivity",
			"priority": 3,
			"rules": []map[string]any{{
				"name":     "grant on long silence",
				"priority": 10,
				"conditions": map[string]any{
					"all": []map[string]any{{
						"field":    "result.days_overdue",
						"operator": "greater_than",
						"value":    "30",
					}},
				},
				"actions": []map[string]any{{"type": "notify"}},
			}},
		})
		s.Equal("inactivity", created.Type)
		s.Equal("pending", created.Status)
		s.Equal(s.userID.String(), created.UserID)
		s.Require().Len(created.Rules, 1)
		s.Equal(trigger.ActionNotify, created.Rules[0].Actions[0].Type)
	})

	s.Run("unauthenticated", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/triggers", map[string]any{"type": "inactivity"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("unknown evidence type", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/triggers", map[string]any{"type": "horoscope"})
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_failed")
	})

	s.Run("unknown action type", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/triggers", map[string]any{
			"type": "inactivity",
			"rules": []map[string]any{{
				"name":    "bad action",
				"actions": []map[string]any{{"type": "self_destruct"}},
			}},
		})
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_failed")
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/triggers", "{not json")
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestGetAndList() {
	created := s.createTrigger(map[string]any{"type": "medical_emergency"})

	s.Run("get by id", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/triggers/"+created.ID)
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		got := testutil.UnmarshalResponse[handler.TriggerResponse](s.T(), rr)
		s.Equal(created.ID, got.ID)
	})

	s.Run("get unknown id", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/triggers/"+id.NewTriggerID().String())
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("get malformed id", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/triggers/not-a-uuid")
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("list for user", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/triggers")
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		list := testutil.UnmarshalResponse[handler.ListResponse](s.T(), rr)
		s.Len(list.Triggers, 1)
	})
}

func (s *HandlerSuite) TestStatusLifecycle() {
	created := s.createTrigger(map[string]any{"type": "legal_document_filed"})

	s.Run("legal transition", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/triggers/"+created.ID+"/status",
			map[string]any{"status": "active"})
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		got := testutil.UnmarshalResponse[handler.TriggerResponse](s.T(), rr)
		s.Equal("active", got.Status)
	})

	s.Run("illegal transition conflicts", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/triggers/"+created.ID+"/status",
			map[string]any{"status": "completed"})
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invariant_violation")
	})
}

func (s *HandlerSuite) TestEscalate() {
	created := s.createTrigger(map[string]any{"type": "beneficiary_petition", "priority": 2})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/triggers/"+created.ID+"/escalate", nil)
	req = testutil.WithUserID(req, s.userID.String())
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	got := testutil.UnmarshalResponse[handler.TriggerResponse](s.T(), rr)
	s.Equal(3, got.Priority)
	s.Equal(created.Status, got.Status, "escalation never changes status")
}

func (s *HandlerSuite) TestUpdateAndDelete() {
	created := s.createTrigger(map[string]any{"type": "third_party_signal", "priority": 1})

	s.Run("partial update", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/triggers/"+created.ID,
			map[string]any{"priority": 7})
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		got := testutil.UnmarshalResponse[handler.TriggerResponse](s.T(), rr)
		s.Equal(7, got.Priority)
		s.Equal(created.Type, got.Type)
	})

	s.Run("delete", func() {
		req := testutil.NewRequest(s.T(), http.MethodDelete, "/triggers/"+created.ID)
		req = testutil.WithUserID(req, s.userID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

		req = testutil.NewRequest(s.T(), http.MethodGet, "/triggers/"+created.ID)
		req = testutil.WithUserID(req, s.userID.String())
		rr = testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}
