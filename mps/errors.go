package mps

import (
	"github.com/pkg/errors"
)

var (
	// ErrValidation is returned when a state violates one of its invariants.
	ErrValidation = errors.New("mps: invalid state")
	// ErrIndexOutOfBounds is returned for site indices outside [0, L) of a finite state.
	ErrIndexOutOfBounds = errors.New("mps: index out of bounds")
	// ErrUnknownFormConversion is returned when a tensor of Unknown form needs to be converted.
	ErrUnknownFormConversion = errors.New("mps: conversion from unknown form")
	// ErrUnsupportedSpectrumExponent is returned when a dense spectrum is raised to a power other than 1 or -1.
	ErrUnsupportedSpectrumExponent = errors.New("mps: unsupported exponent for dense spectrum")
	// ErrShapeMismatch is returned for inputs of the wrong length or shape, and for unsupported form names.
	ErrShapeMismatch = errors.New("mps: shape mismatch")
	// ErrSpectrumDomain is returned when a zero singular value is raised to a negative power.
	ErrSpectrumDomain = errors.New("mps: negative power of zero singular value")
)
