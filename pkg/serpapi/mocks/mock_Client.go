// Package mocks provides test doubles for the serpapi client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	serpapi "github.com/FelipeFraul/buscai-v2-sub002/pkg/serpapi"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, req
func (_m *MockClient) Search(ctx context.Context, req serpapi.SearchRequest) ([]serpapi.Result, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []serpapi.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, serpapi.SearchRequest) ([]serpapi.Result, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]serpapi.Result)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
