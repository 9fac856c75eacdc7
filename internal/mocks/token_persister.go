package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

// TokenPersister is a mock type for the TokenPersister type.
type TokenPersister struct {
	mock.Mock
}

// Load provides a mock function with given fields: ctx
func (_m *TokenPersister) Load(ctx context.Context) (model.Token, error) {
	ret := _m.Called(ctx)

	if rf, ok := ret.Get(0).(func(context.Context) (model.Token, error)); ok {
		return rf(ctx)
	}
	return ret.Get(0).(model.Token), ret.Error(1)
}

// Save provides a mock function with given fields: ctx, token
func (_m *TokenPersister) Save(ctx context.Context, token model.Token) error {
	ret := _m.Called(ctx, token)
	return ret.Error(0)
}

// Delete provides a mock function with given fields: ctx
func (_m *TokenPersister) Delete(ctx context.Context) error {
	ret := _m.Called(ctx)
	return ret.Error(0)
}

// NewTokenPersister creates a new instance of TokenPersister. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewTokenPersister(t interface {
	mock.TestingT
	Cleanup(func())
}) *TokenPersister {
	m := &TokenPersister{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
