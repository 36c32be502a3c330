package engine

import "errors"

// ErrInvalidState indicates the evaluation cannot be run as configured:
// missing test cases, missing target model, or enabled criteria without a
// judge model.
var ErrInvalidState = errors.New("evaluation is not runnable")

// ErrCapability indicates the target model lacks a capability the evaluation
// config requires, such as vision input.
var ErrCapability = errors.New("model lacks required capability")

// ErrRunNotActive indicates a stop was requested for a run that is not
// currently executing.
var ErrRunNotActive = errors.New("run is not active")
