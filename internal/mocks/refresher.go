package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

// Refresher is a mock type for the Refresher type.
type Refresher struct {
	mock.Mock
}

// Refresh provides a mock function with given fields: ctx, refreshToken
func (_m *Refresher) Refresh(ctx context.Context, refreshToken string) (model.Token, error) {
	ret := _m.Called(ctx, refreshToken)

	if rf, ok := ret.Get(0).(func(context.Context, string) (model.Token, error)); ok {
		return rf(ctx, refreshToken)
	}
	return ret.Get(0).(model.Token), ret.Error(1)
}

// NewRefresher creates a new instance of Refresher. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewRefresher(t interface {
	mock.TestingT
	Cleanup(func())
}) *Refresher {
	m := &Refresher{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
