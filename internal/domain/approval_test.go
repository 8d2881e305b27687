package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ApprovalStateSuite covers the transition guards of ApprovalRequest.
type ApprovalStateSuite struct {
	suite.Suite
	now       time.Time
	requester Actor
	admin     Actor
}

func TestApprovalStateSuite(t *testing.T) {
	suite.Run(t, new(ApprovalStateSuite))
}

func (s *ApprovalStateSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.requester = Actor{ID: "u-1", Name: "Requester"}
	s.admin = Actor{ID: "admin-1", Name: "Admin"}
}

func (s *ApprovalStateSuite) pending() *ApprovalRequest {
	r := NewApprovalRequest(RequestProductCreate, nil, `{}`, s.requester, s.now)
	r.ID = 7
	return r
}

func (s *ApprovalStateSuite) inStatus(st ApprovalStatus) *ApprovalRequest {
	r := s.pending()
	r.Status = st
	return r
}

var allStatuses = []ApprovalStatus{StatusPending, StatusApproved, StatusRejected, StatusExecuted, StatusFailed, StatusCancelled}

// -------------------------------------------------------------------------
// Decision transitions
// -------------------------------------------------------------------------

func (s *ApprovalStateSuite) TestNewRequest() {
	r := s.pending()
	s.Equal(StatusPending, r.Status)
	s.Equal(EntityProduct, r.EntityType)
	s.Nil(r.EntityID)
	s.Nil(r.ApprovedBy)
	s.Nil(r.ProcessedAt)
	s.Nil(r.ExecutedAt)
}

func (s *ApprovalStateSuite) TestApprove() {
	s.Run("from pending stamps approver and processedAt", func() {
		r := s.pending()
		s.Require().NoError(r.Approve(s.admin, s.now.Add(time.Minute)))
		s.Equal(StatusApproved, r.Status)
		s.Equal(s.admin, *r.ApprovedBy)
		s.Equal(s.now.Add(time.Minute), *r.ProcessedAt)
		s.Nil(r.ExecutedAt)
	})

	s.Run("second approve fails with invalid state", func() {
		r := s.pending()
		s.Require().NoError(r.Approve(s.admin, s.now))
		err := r.Approve(Actor{ID: "admin-2"}, s.now.Add(time.Hour))
		s.ErrorIs(err, ErrInvalidState)
		s.Equal(s.admin, *r.ApprovedBy)
		s.Equal(s.now, *r.ProcessedAt)
	})

	for _, st := range allStatuses {
		if st == StatusPending {
			continue
		}
		s.Run("rejected from "+string(st), func() {
			r := s.inStatus(st)
			s.ErrorIs(r.Approve(s.admin, s.now), ErrInvalidState)
			s.Equal(st, r.Status)
		})
	}
}

func (s *ApprovalStateSuite) TestReject() {
	s.Run("from pending stores reason", func() {
		r := s.pending()
		s.Require().NoError(r.Reject(s.admin, "duplicate", s.now))
		s.Equal(StatusRejected, r.Status)
		s.Equal("duplicate", *r.RejectionReason)
		s.NotNil(r.ProcessedAt)
	})

	for _, st := range allStatuses {
		if st == StatusPending {
			continue
		}
		s.Run("rejected from "+string(st), func() {
			r := s.inStatus(st)
			s.ErrorIs(r.Reject(s.admin, "no", s.now), ErrInvalidState)
			s.Nil(r.RejectionReason)
		})
	}
}

// -------------------------------------------------------------------------
// Execution outcome
// -------------------------------------------------------------------------

func (s *ApprovalStateSuite) TestMarkExecuted() {
	for _, st := range allStatuses {
		r := s.inStatus(st)
		err := r.MarkExecuted(s.now)
		if st == StatusApproved {
			s.Require().NoError(err)
			s.Equal(StatusExecuted, r.Status)
			s.Equal(s.now, *r.ExecutedAt)
			continue
		}
		s.ErrorIs(err, ErrInvalidState, "status %s", st)
		s.Nil(r.ExecutedAt)
	}
}

func (s *ApprovalStateSuite) TestMarkFailed() {
	for _, st := range allStatuses {
		r := s.inStatus(st)
		err := r.MarkFailed("downstream 500")
		if st == StatusApproved {
			s.Require().NoError(err)
			s.Equal(StatusFailed, r.Status)
			s.Equal("downstream 500", *r.RejectionReason)
			s.Nil(r.ExecutedAt)
			continue
		}
		s.ErrorIs(err, ErrInvalidState, "status %s", st)
	}
}

// -------------------------------------------------------------------------
// Cancel
// -------------------------------------------------------------------------

func (s *ApprovalStateSuite) TestCancel() {
	s.Run("requester cancels own pending request", func() {
		r := s.pending()
		s.Require().NoError(r.Cancel(s.requester))
		s.Equal(StatusCancelled, r.Status)
		s.True(r.Status.Terminal())
	})

	s.Run("non-requester is rejected and request is unchanged", func() {
		r := s.pending()
		before := r.Clone()
		s.ErrorIs(r.Cancel(s.admin), ErrInsufficientPermission)
		s.Equal(before, r)
	})

	s.Run("not pending", func() {
		r := s.inStatus(StatusApproved)
		s.ErrorIs(r.Cancel(s.requester), ErrInvalidState)
	})
}

func (s *ApprovalStateSuite) TestCloneIsDeep() {
	r := s.pending()
	id := int64(42)
	r.EntityID = &id
	s.Require().NoError(r.Approve(s.admin, s.now))

	cp := r.Clone()
	*cp.EntityID = 1
	cp.ApprovedBy.Name = "changed"

	s.Equal(int64(42), *r.EntityID)
	s.Equal("Admin", r.ApprovedBy.Name)
}

func (s *ApprovalStateSuite) TestRequestTypePermissions() {
	s.True(RequestProductTransfer.Valid())
	s.False(RequestType("route.complete").Valid())
	s.Equal("product.create", RequestProductCreate.RequestPermission())
	s.Equal("product.create.direct", RequestProductCreate.DirectPermission())
}
