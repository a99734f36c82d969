//go:build unit || !integration

package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/prospector-bot/prospector/pkg/logger"
	"github.com/prospector-bot/prospector/pkg/models"
)

type ClientSuite struct {
	suite.Suite
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
}

func (s *ClientSuite) newClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	s.T().Cleanup(server.Close)
	client, err := NewClient(Params{URL: server.URL, APIKey: "test-key", RetryMax: 1})
	s.Require().NoError(err)
	return client, server
}

func (s *ClientSuite) TestListInstancesSendsAuthAndStatus() {
	client, _ := s.newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("test-key", r.Header.Get("x-api-key"))
		s.Equal("/v1/instances/", r.URL.Path)
		s.Equal("0", r.URL.Query().Get("instance_status"))
		s.NoError(json.NewEncoder(w).Encode([]models.Instance{
			{ID: "inst-1", Background: "fix the bug", Status: models.InstanceStatusOpen},
		}))
	}))

	instances, err := client.ListInstances(context.Background(), models.InstanceStatusOpen)
	s.Require().NoError(err)
	s.Require().Len(instances, 1)
	s.Equal("inst-1", instances[0].ID)
}

func (s *ClientSuite) TestCreateProposalPostsMaxBid() {
	client, _ := s.newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("/v1/proposals/create/for-instance/inst-1", r.URL.Path)

		var body map[string]float64
		s.NoError(json.NewDecoder(r.Body).Decode(&body))
		s.Equal(0.0075, body["max_bid"])

		s.NoError(json.NewEncoder(w).Encode(models.Proposal{InstanceID: "inst-1", MaxBid: 0.0075}))
	}))

	proposal, err := client.CreateProposal(context.Background(), "inst-1", 0.0075)
	s.Require().NoError(err)
	s.Equal("inst-1", proposal.InstanceID)
}

func (s *ClientSuite) TestEmptyResponseBodyTolerated() {
	client, _ := s.newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	s.NoError(client.SendMessage(context.Background(), "inst-1", "done"))
	s.NoError(client.ReportSolved(context.Background(), "inst-1"))
}

func (s *ClientSuite) TestErrorsCarryStatusAndBody() {
	client, _ := s.newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"no such instance"}`, http.StatusNotFound)
	}))

	_, err := client.GetInstance(context.Background(), "missing")
	s.Require().Error(err)
	s.True(IsNotFound(err))
	s.Contains(err.Error(), "no such instance")
}

func (s *ClientSuite) TestRetriesServerErrors() {
	attempts := 0
	client, _ := s.newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "be right back", http.StatusInternalServerError)
			return
		}
		s.NoError(json.NewEncoder(w).Encode([]models.Proposal{}))
	}))

	_, err := client.ListProposals(context.Background())
	s.Require().NoError(err)
	s.Equal(2, attempts)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	logger.ConfigureTestLogging(t)
	_, err := NewClient(Params{URL: "://nope"})
	require.Error(t, err)
}
