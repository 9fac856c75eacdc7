package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// TokenInspector is a mock type for the TokenInspector type.
type TokenInspector struct {
	mock.Mock
}

// Metadata provides a mock function with given fields: accessToken
func (_m *TokenInspector) Metadata(accessToken string) (time.Time, time.Time, error) {
	ret := _m.Called(accessToken)
	return ret.Get(0).(time.Time), ret.Get(1).(time.Time), ret.Error(2)
}

// NewTokenInspector creates a new instance of TokenInspector. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewTokenInspector(t interface {
	mock.TestingT
	Cleanup(func())
}) *TokenInspector {
	m := &TokenInspector{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
