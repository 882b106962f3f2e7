// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/sessiongate/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("MY_CODE").Errorf("test error")
	errutil.AssertErrorCode(t, err, "MY_CODE")
}

func TestAssertErrorCode_DeepestCodeWins(t *testing.T) {
	inner := oops.Code("INNER").Errorf("inner")
	errutil.AssertErrorCode(t, oops.Code("OUTER").Wrap(inner), "INNER")
}

func TestAssertErrorDomain(t *testing.T) {
	errutil.AssertErrorDomain(t, oops.In("protocol").Errorf("test error"), "protocol")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("user_id", "123").Errorf("test error")
	errutil.AssertErrorContext(t, err, "user_id", "123")
}
