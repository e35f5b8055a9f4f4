package handler

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/xenking/storefront/internal/registration"
)

func (h *Handler) registerAccounts(api huma.API) {
	huma.Register(api, operation("register", http.MethodPost, "/api/auth/register",
		"Start sign-up and send a verification code", "Auth", public), h.register)
	huma.Register(api, operation("verify", http.MethodPost, "/api/auth/verify",
		"Complete sign-up with the verification code", "Auth", public), h.verify)
	huma.Register(api, operation("login", http.MethodPost, "/api/auth/login",
		"Sign in and receive an API key", "Auth", public), h.login)
}

type RegisterInput struct {
	Body struct {
		Name     string `json:"name" maxLength:"100"`
		Email    string `json:"email" maxLength:"254"`
		Password string `json:"password" maxLength:"128"`
		Phone    string `json:"phone,omitempty" maxLength:"20"`
	}
}

type VerifyInput struct {
	Body struct {
		Email string `json:"email"`
		OTP   string `json:"otp" minLength:"6" maxLength:"6"`
	}
}

type LoginInput struct {
	Body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
}

func (h *Handler) register(ctx context.Context, in *RegisterInput) (*MessageResponse, error) {
	err := h.svc.Registration.Start(ctx, registration.StartRequest{
		Name:     in.Body.Name,
		Email:    in.Body.Email,
		Password: in.Body.Password,
		Phone:    in.Body.Phone,
	})
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return message("Verification code sent to your email"), nil
}

func (h *Handler) verify(ctx context.Context, in *VerifyInput) (*Response[SessionView], error) {
	s, err := h.svc.Registration.Verify(ctx, in.Body.Email, in.Body.OTP)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	r := okMessage("Account created successfully", sessionView(s))
	r.Status = http.StatusCreated
	return r, nil
}

func (h *Handler) login(ctx context.Context, in *LoginInput) (*Response[SessionView], error) {
	s, err := h.svc.Accounts.Login(ctx, in.Body.Email, in.Body.Password)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Logged in successfully", sessionView(s)), nil
}
