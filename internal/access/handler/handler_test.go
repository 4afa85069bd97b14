package handler_test

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"heirloom/internal/access"
	"heirloom/internal/access/handler"
	id "heirloom/pkg/domain"
	"heirloom/pkg/testutil"
)

// =============================================================================
// Access Handler Test Suite
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
	service := access.NewService(access.NewInMemoryStore())
	h := handler.New(service, slog.Default())
	s.router = chi.NewRouter()
	h.Register(s.router)
	s.userID = id.NewUserID()
}

func (s *HandlerSuite) do(req *http.Request) *http.Request {
	return testutil.WithUserID(req, s.userID.String())
}

func (s *HandlerSuite) createMatrix(strategy string) handler.MatrixResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices", map[string]any{
		"name":              "estate policy",
		"conflict_strategy": strategy,
	})
	rr := testutil.DoRequest(s.router, s.do(req))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[handler.MatrixResponse](s.T(), rr)
}

func (s *HandlerSuite) registerBeneficiary() handler.BeneficiaryResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/beneficiaries", map[string]any{
		"name":         "Jordan",
		"trust_level":  "high",
		"relationship": "spouse",
	})
	rr := testutil.DoRequest(s.router, s.do(req))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[handler.BeneficiaryResponse](s.T(), rr)
}

func (s *HandlerSuite) TestCreateMatrix() {
	s.Run("valid request", func() {
		matrix := s.createMatrix("most_permissive")
		s.Equal("most_permissive", matrix.Strategy)
		s.Equal(1, matrix.Version)
	})

	s.Run("unknown strategy", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices", map[string]any{
			"name":              "estate policy",
			"conflict_strategy": "coin_flip",
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_failed")
	})

	s.Run("unauthenticated", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices", map[string]any{
			"name":              "estate policy",
			"conflict_strategy": "priority",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})
}

func (s *HandlerSuite) TestRulesAndEvaluation() {
	matrix := s.createMatrix("most_permissive")
	beneficiary := s.registerBeneficiary()

	s.Run("add rule bumps the version", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices/"+matrix.ID+"/rules", map[string]any{
			"rule": map[string]any{
				"priority":    10,
				"active":      true,
				"permissions": map[string]bool{"read": true, "download": true},
			},
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		updated := testutil.UnmarshalResponse[handler.MatrixResponse](s.T(), rr)
		s.Equal(2, updated.Version)
		s.Len(updated.Rules, 1)
	})

	s.Run("evaluation allows the matching beneficiary", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices/"+matrix.ID+"/evaluate", map[string]any{
			"beneficiary_id": beneficiary.ID,
			"resource_type":  "documents",
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		evaluation := testutil.UnmarshalResponse[access.PermissionEvaluation](s.T(), rr)
		s.True(evaluation.Allowed)
		s.Equal(access.AccessLevelPartial, evaluation.AccessLevel)
	})

	s.Run("unknown beneficiary is denied, not an error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices/"+matrix.ID+"/evaluate", map[string]any{
			"beneficiary_id": id.NewBeneficiaryID().String(),
			"resource_type":  "documents",
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		evaluation := testutil.UnmarshalResponse[access.PermissionEvaluation](s.T(), rr)
		s.False(evaluation.Allowed)
		s.Equal("beneficiary not found", evaluation.Reason)
	})

	s.Run("missing resource type is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices/"+matrix.ID+"/evaluate", map[string]any{
			"beneficiary_id": beneficiary.ID,
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_failed")
	})

	s.Run("replace rules wholesale", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/matrices/"+matrix.ID+"/rules", map[string]any{
			"rules": []map[string]any{{
				"priority":    1,
				"active":      true,
				"permissions": map[string]bool{"read": true},
			}},
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		updated := testutil.UnmarshalResponse[handler.MatrixResponse](s.T(), rr)
		s.Len(updated.Rules, 1)
	})
}

func (s *HandlerSuite) TestEvaluateDeviceContext() {
	matrix := s.createMatrix("most_permissive")
	beneficiary := s.registerBeneficiary()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices/"+matrix.ID+"/rules", map[string]any{
		"rule": map[string]any{
			"priority":    10,
			"active":      true,
			"permissions": map[string]bool{"read": true},
			"conditions":  []map[string]any{{"type": "device_trust"}},
		},
	})
	rr := testutil.DoRequest(s.router, s.do(req))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	s.Run("untrusted device is denied with a required action", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices/"+matrix.ID+"/evaluate", map[string]any{
			"beneficiary_id": beneficiary.ID,
			"resource_type":  "documents",
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		evaluation := testutil.UnmarshalResponse[access.PermissionEvaluation](s.T(), rr)
		s.False(evaluation.Allowed)
		s.Require().Len(evaluation.RequiredActions, 1)
		s.Contains(evaluation.RequiredActions[0], "trusted device")
	})

	s.Run("vouched device with a browser user agent is allowed", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices/"+matrix.ID+"/evaluate", map[string]any{
			"beneficiary_id": beneficiary.ID,
			"resource_type":  "documents",
			"device_trusted": true,
			"user_agent":     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		evaluation := testutil.UnmarshalResponse[access.PermissionEvaluation](s.T(), rr)
		s.True(evaluation.Allowed)
		s.Empty(evaluation.DeniedBy)
	})

	s.Run("bot user agent from the request header is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/matrices/"+matrix.ID+"/evaluate", map[string]any{
			"beneficiary_id": beneficiary.ID,
			"resource_type":  "documents",
			"device_trusted": true,
		})
		req.Header.Set("User-Agent", "Googlebot/2.1 (+http://www.google.com/bot.html)")
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		evaluation := testutil.UnmarshalResponse[access.PermissionEvaluation](s.T(), rr)
		s.False(evaluation.Allowed)
	})
}

func (s *HandlerSuite) TestGrants() {
	beneficiary := s.registerBeneficiary()
	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	s.Run("issue", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/grants", map[string]any{
			"beneficiary_id": beneficiary.ID,
			"resource_type":  "documents",
			"expires_at":     expiresAt,
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		grant := testutil.UnmarshalResponse[handler.GrantResponse](s.T(), rr)
		s.Equal(beneficiary.ID, grant.BeneficiaryID)
		s.False(grant.Revoked)
	})

	s.Run("issue without expiry is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/grants", map[string]any{
			"beneficiary_id": beneficiary.ID,
		})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_failed")
	})

	s.Run("list and revoke", func() {
		listReq := testutil.NewRequest(s.T(), http.MethodGet, "/grants")
		rr := testutil.DoRequest(s.router, s.do(listReq))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		grants := testutil.UnmarshalResponse[handler.GrantsResponse](s.T(), rr)
		s.Require().Len(grants.Grants, 1)

		revokeReq := testutil.NewJSONRequest(s.T(), http.MethodPost, "/grants/"+grants.Grants[0].ID+"/revoke",
			map[string]any{"reason": "owner request"})
		rr = testutil.DoRequest(s.router, s.do(revokeReq))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

		rr = testutil.DoRequest(s.router, s.do(testutil.NewRequest(s.T(), http.MethodGet, "/grants")))
		grants = testutil.UnmarshalResponse[handler.GrantsResponse](s.T(), rr)
		s.Require().Len(grants.Grants, 1)
		s.True(grants.Grants[0].Revoked)
	})

	s.Run("revoke unknown grant", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/grants/"+id.NewGrantID().String()+"/revoke",
			map[string]any{})
		rr := testutil.DoRequest(s.router, s.do(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestActivation() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/activation", map[string]any{
		"active":       true,
		"trigger_type": "medical_emergency",
		"severity":     "critical",
	})
	rr := testutil.DoRequest(s.router, s.do(req))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}
