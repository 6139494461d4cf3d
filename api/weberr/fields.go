package weberr

import (
	"errors"

	"github.com/sirupsen/logrus"
)

type fieldsError struct {
	error
	fields logrus.Fields
}

func (e *fieldsError) Unwrap() error { return e.error }

// Fields collects the log fields of every WithFields layer in the chain. An
// outer layer wins over an inner one on the same key.
func Fields(err error) (logrus.Fields, bool) {
	var out logrus.Fields

	for err != nil {
		var fe *fieldsError
		if !errors.As(err, &fe) {
			break
		}
		if out == nil {
			out = make(logrus.Fields, len(fe.fields))
		}
		for k, v := range fe.fields {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
		err = fe.error
	}

	return out, out != nil
}
