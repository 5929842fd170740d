// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case shoutError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(shoutError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// GetErrorType 返回错误的类型；非 shoutError 一律视为 SystemError。
func GetErrorType(err error) ErrorType {
	if err, ok := errors.Cause(err).(shoutError); ok {
		return err.errType
	}
	return SystemError
}

func WrapErrServiceNotReady(role string, state string, msg ...string) error {
	err := wrapFields(ErrServiceNotReady,
		value("role", role),
		value("state", state),
	)
	return wrapMsg(err, msg)
}

func WrapErrServiceInternal(reason string, msg ...string) error {
	return wrapMsg(wrapFieldsWithDesc(ErrServiceInternal, reason), msg)
}

func WrapErrServiceOverloaded(reason string, msg ...string) error {
	return wrapMsg(wrapFieldsWithDesc(ErrServiceOverloaded, reason), msg)
}

func WrapErrSessionMissing(remote string, msg ...string) error {
	err := wrapFields(ErrSessionMissing, value("remote", remote))
	return wrapMsg(err, msg)
}

func WrapErrSessionClosed(connID uint64, msg ...string) error {
	err := wrapFields(ErrSessionClosed, value("connID", connID))
	return wrapMsg(err, msg)
}

func WrapErrSendQueueFull(connID uint64, capacity int, msg ...string) error {
	err := wrapFields(ErrSendQueueFull,
		value("connID", connID),
		value("capacity", capacity),
	)
	return wrapMsg(err, msg)
}

func WrapErrMemberNotFound(sessionID string, msg ...string) error {
	err := wrapFields(ErrMemberNotFound, value("session", sessionID))
	return wrapMsg(err, msg)
}

func WrapErrLocationInvalid(input string, reason string) error {
	return wrapFieldsWithDesc(ErrLocationInvalid, reason, value("input", input))
}

func WrapErrDistanceInvalid(input string, reason string) error {
	return wrapFieldsWithDesc(ErrDistanceInvalid, reason, value("input", input))
}

func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	return wrapMsg(err, msg)
}

func WrapErrParameterInvalidMsg(fmtStr string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmtStr, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing, value("missing_param", param))
	return wrapMsg(err, msg)
}

func WrapErrParameterTooLarge(name string, msg ...string) error {
	err := wrapFields(ErrParameterTooLarge, value("message", name))
	return wrapMsg(err, msg)
}

func wrapMsg(err error, msg []string) error {
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err shoutError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err shoutError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
