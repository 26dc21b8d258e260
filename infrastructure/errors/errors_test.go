package errors

import (
	"errors"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeNotFound, "test message"),
			want: "[NOT_FOUND] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", errors.New("underlying")),
			want: "[INTERNAL] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeInvalidPath, "test")
	err.WithDetails("path", "../etc").WithDetails("reason", "traversal")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}

	if err.Details["path"] != "../etc" {
		t.Errorf("Details[path] = %v, want ../etc", err.Details["path"])
	}
}

func TestInvalidPath(t *testing.T) {
	err := InvalidPath("../escape", "traversal")

	if err.Code != ErrCodeInvalidPath {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidPath)
	}
	if err.Details["path"] != "../escape" {
		t.Errorf("Details[path] = %v, want ../escape", err.Details["path"])
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("instance", "123")

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}
	if err.Details["resource"] != "instance" {
		t.Errorf("Details[resource] = %v, want instance", err.Details["resource"])
	}
	if err.Details["id"] != "123" {
		t.Errorf("Details[id] = %v, want 123", err.Details["id"])
	}
}

func TestAlreadyExists(t *testing.T) {
	err := AlreadyExists("instance", "survival")

	if err.Code != ErrCodeAlreadyExists {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeAlreadyExists)
	}
}

func TestNetwork(t *testing.T) {
	underlying := errors.New("connection reset")
	err := Network("download", underlying)

	if err.Code != ErrCodeNetwork {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNetwork)
	}
	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestIntegrityFailure(t *testing.T) {
	err := IntegrityFailure("/data/server.jar", "abc123", "def456")

	if err.Code != ErrCodeIntegrityFailure {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeIntegrityFailure)
	}
	if err.Details["expected"] != "abc123" {
		t.Errorf("Details[expected] = %v, want abc123", err.Details["expected"])
	}
}

func TestInstallerFailure(t *testing.T) {
	underlying := errors.New("exit status 1")
	err := InstallerFailure("forge", 1, underlying)

	if err.Code != ErrCodeInstallerFailure {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInstallerFailure)
	}
	if err.Details["loader"] != "forge" {
		t.Errorf("Details[loader] = %v, want forge", err.Details["loader"])
	}
}

func TestChildSpawn(t *testing.T) {
	underlying := errors.New("exec: \"java\": executable file not found in $PATH")
	err := ChildSpawn("instance-1", underlying)

	if err.Code != ErrCodeChildSpawn {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeChildSpawn)
	}
}

func TestStopTimeout(t *testing.T) {
	err := StopTimeout("instance-1", 60)

	if err.Code != ErrCodeStopTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStopTimeout)
	}
	if err.Details["timeout_sec"] != 60 {
		t.Errorf("Details[timeout_sec] = %v, want 60", err.Details["timeout_sec"])
	}
}

func TestArchiveMalformed(t *testing.T) {
	underlying := errors.New("zip: not a valid zip file")
	err := ArchiveMalformed("/backups/bad.zip", underlying)

	if err.Code != ErrCodeArchiveMalformed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeArchiveMalformed)
	}
}

func TestInvalidSchedule(t *testing.T) {
	underlying := errors.New("unexpected field count")
	err := InvalidSchedule("not a cron", underlying)

	if err.Code != ErrCodeInvalidSchedule {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidSchedule)
	}
}

func TestDatabaseError(t *testing.T) {
	underlying := errors.New("connection timeout")
	err := DatabaseError("insert", underlying)

	if err.Code != ErrCodeDatabaseError {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeDatabaseError)
	}
	if err.Details["operation"] != "insert" {
		t.Errorf("Details[operation] = %v, want insert", err.Details["operation"])
	}
}

func TestValidation(t *testing.T) {
	err := Validation("required fields missing: name")

	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeValidation)
	}
	if err.Message != "required fields missing: name" {
		t.Errorf("Message = %v, want %v", err.Message, "required fields missing: name")
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("unexpected nil pointer")
	err := Internal("internal error", underlying)

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}
	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "service error", err: New(ErrCodeInternal, "test"), want: true},
		{name: "standard error", err: errors.New("standard error"), want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeInternal, "test")
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{name: "service error", err: serviceErr, want: serviceErr},
		{name: "standard error", err: standardErr, want: nil},
		{name: "nil error", err: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := NotFound("instance", "1")

	if !Is(err, ErrCodeNotFound) {
		t.Errorf("Is(err, ErrCodeNotFound) = false, want true")
	}
	if Is(err, ErrCodeInternal) {
		t.Errorf("Is(err, ErrCodeInternal) = true, want false")
	}
	if Is(errors.New("plain"), ErrCodeNotFound) {
		t.Errorf("Is(plain error, ...) = true, want false")
	}
}
