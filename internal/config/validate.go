package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/aelpxy/stash/pkg/models"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("toml"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks option ranges and option pairs. Directory existence is
// checked separately when the configuration is loaded.
func Validate(cfg *models.Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if cfg.TelegramBotToken != "" {
		parts := strings.Split(cfg.TelegramBotToken, ":")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Trim(parts[0], "0123456789") != "" {
			return fmt.Errorf("%w: telegram_bot_token must look like <bot id>:<secret>", ErrInvalid)
		}
	}

	for id := range cfg.ContainerPaths {
		if strings.TrimSpace(id) != id {
			return fmt.Errorf("%w: container_paths: container %q has surrounding whitespace", ErrInvalid, id)
		}
	}

	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")

	switch {
	case field == "backup_keep_num":
		return fmt.Sprintf("backup_keep_num expected -1 (disable pruning) or a positive integer, got %v", fe.Value())
	case field == "ghost_backup_keep_days":
		return fmt.Sprintf("ghost_backup_keep_days expected -1 (disable pruning) or a non-negative integer, got %v", fe.Value())
	case strings.HasPrefix(field, "container_paths"):
		switch fe.Tag() {
		case "min":
			return fmt.Sprintf("%s: list of paths cannot be empty, use \"/\" for the whole container", field)
		case "startswith":
			return fmt.Sprintf("%s: path %q must be absolute", field, fe.Value())
		default:
			return fmt.Sprintf("%s: container id cannot be empty", field)
		}
	}

	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s expected an integer >= %s, got %v", field, fe.Param(), fe.Value())
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, paramNames(fe.Param()))
	case "required":
		return fmt.Sprintf("%s cannot be empty", field)
	case "oneof":
		return fmt.Sprintf("%s expected one of [%s], got %q", field, fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed rule %q", field, fe.Tag())
}

var fieldKeys = map[string]string{
	"TelegramBotToken": "telegram_bot_token",
	"TelegramChatID":   "telegram_chat_id",
	"DockerTLSCA":      "docker_tls_ca",
	"DockerTLSCert":    "docker_tls_cert",
	"DockerTLSKey":     "docker_tls_key",
}

func paramNames(param string) string {
	names := strings.Fields(param)
	for i, n := range names {
		if key, ok := fieldKeys[n]; ok {
			names[i] = key
		}
	}
	return strings.Join(names, " or ")
}
