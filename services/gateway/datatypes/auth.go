// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// =============================================================================
// Authentication Types
// =============================================================================

// AuthRequest is the login/register body.
type AuthRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// Validate checks the request against its validation tags.
func (r *AuthRequest) Validate() error {
	return gatewayValidate.Struct(r)
}

// AuthResponse carries the issued opaque session token.
type AuthResponse struct {
	Token string `json:"token"`
}

// =============================================================================
// Patient Profile Types
// =============================================================================

// PatientInfo is the patient profile attached to an account. The
// diagnosis engine folds it into its system prompt.
type PatientInfo struct {
	Name   string  `json:"name" validate:"required,max=128"`
	Age    int32   `json:"age" validate:"required,gt=0,lte=130"`
	Gender string  `json:"gender" validate:"required,max=32"`
	Weight float32 `json:"weight" validate:"required,gt=0,lte=500"`
	Height float32 `json:"height" validate:"required,gt=0,lte=300"`
}

// SavePatientRequest is the POST /api/patient body.
type SavePatientRequest struct {
	Token   string      `json:"token" validate:"required"`
	Patient PatientInfo `json:"patient" validate:"required"`
}

// Validate checks the request, including the nested patient profile.
func (r *SavePatientRequest) Validate() error {
	if err := gatewayValidate.Struct(r); err != nil {
		return err
	}
	return gatewayValidate.Struct(&r.Patient)
}

// SavePatientResponse reports the save outcome.
type SavePatientResponse struct {
	Success bool `json:"success"`
}

// GetPatientResponse wraps the stored profile.
type GetPatientResponse struct {
	Patient PatientInfo `json:"patient"`
}
