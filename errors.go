// CoverLink - Error Handling and Definitions
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Common error types
var (
	ErrInvalidCover         = errors.New("invalid cover image")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrTimeout              = errors.New("operation timeout")
	ErrNotConnected         = errors.New("not connected to broker")
	ErrStorageDisabled      = errors.New("history storage disabled")
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	component string
	logger    *zap.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(component string, logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		component: component,
		logger:    logger.With(zap.String("component", component)),
	}
}

// HandleCoverError handles cover conversion errors
func (eh *ErrorHandler) HandleCoverError(source string, err error) error {
	if err != nil {
		eh.logger.Warn("failed to convert cover", zap.String("source", source), zap.Error(err))
		if errors.Is(err, ErrInvalidCover) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidCover, err)
	}
	return nil
}

// LogError logs an error with component context
func (eh *ErrorHandler) LogError(operation string, err error) {
	if err != nil {
		eh.logger.Error("operation failed", zap.String("operation", operation), zap.Error(err))
	}
}

// IsNetworkError checks if an error is network-related
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNotConnected)
}

// WrapError wraps an error with additional context
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}
