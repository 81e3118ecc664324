// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"socialfeed/internal/models"
)

// MinTextLength is the minimum trimmed length of a post title, post content and password.
const MinTextLength = 5

// PostInput holds the text fields of a create or update request after trimming.
type PostInput struct {
	Title   string
	Content string
}

// NormalizePost trims title and content and returns the field errors, if any.
func NormalizePost(title, content string) (PostInput, []models.FieldError) {
	in := PostInput{
		Title:   strings.TrimSpace(title),
		Content: strings.TrimSpace(content),
	}

	var errs []models.FieldError
	if e := minLength("title", in.Title, MinTextLength); e != nil {
		errs = append(errs, *e)
	}
	if e := minLength("content", in.Content, MinTextLength); e != nil {
		errs = append(errs, *e)
	}
	return in, errs
}

// SignupInput is a normalized account registration request.
type SignupInput struct {
	Email    string
	Password string
	Name     string
}

// NormalizeSignup lowercases the email, trims every field and checks each rule.
func NormalizeSignup(email, password, name string) (SignupInput, []models.FieldError) {
	in := SignupInput{
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: strings.TrimSpace(password),
		Name:     strings.TrimSpace(name),
	}

	var errs []models.FieldError
	if _, err := mail.ParseAddress(in.Email); err != nil || strings.ContainsAny(in.Email, " <>") {
		errs = append(errs, models.FieldError{Field: "email", Message: "Please enter a valid email.", Value: in.Email})
	}
	if e := minLength("password", in.Password, MinTextLength); e != nil {
		e.Value = ""
		errs = append(errs, *e)
	}
	if in.Name == "" {
		errs = append(errs, models.FieldError{Field: "name", Message: "must not be empty"})
	}
	return in, errs
}

// NormalizeStatus trims a status update and rejects an empty result.
func NormalizeStatus(status string) (string, []models.FieldError) {
	s := strings.TrimSpace(status)
	if s == "" {
		return s, []models.FieldError{{Field: "status", Message: "must not be empty"}}
	}
	return s, nil
}

func minLength(field, value string, n int) *models.FieldError {
	if utf8.RuneCountInString(value) >= n {
		return nil
	}
	return &models.FieldError{
		Field:   field,
		Message: fmt.Sprintf("must be at least %d characters", n),
		Value:   value,
	}
}
