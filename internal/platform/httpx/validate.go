package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationProblem answers 400 naming the first failed field of a
// validator error.
func ValidationProblem(w http.ResponseWriter, err error) {
	detail := "invalid payload"
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		detail = strings.ToLower(verrs[0].Field()) + " failed " + verrs[0].Tag()
	}
	Problem(w, http.StatusBadRequest, "Validation Failed", detail)
}
