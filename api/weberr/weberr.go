package weberr

import "github.com/sirupsen/logrus"

// Opt attaches something the error middleware reads back: the response sent
// to the client or fields for the log line.
type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

func WithResponse(body any, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

func WithFields(fields logrus.Fields) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}
