/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LoggerTestSuite struct {
	suite.Suite
	saved int
}

func (s *LoggerTestSuite) SetupTest() {
	s.saved = Level()
}

func (s *LoggerTestSuite) TearDownTest() {
	SetLevel(s.saved)
}

func (s *LoggerTestSuite) TestLogColor() {
	SetLevel(LevelTrace)
	out := &bytes.Buffer{}
	l := New("queue test", out)

	l.Tracef("this is tracef %s", "hello world")
	l.Infof("this is infof %s", "hello world")
	l.Info("this is info")
	l.Debugf("this is debugf %s", "hello world")
	l.Warnf("this is warnf %s", "hello world")
	l.Errorf("this is errorf %s", "hello world")
	l.Error("this is error")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	s.Require().Len(lines, 7)
	s.Contains(lines[0], "Trace")
	s.Contains(lines[0], "this is tracef hello world")
	s.Contains(lines[6], "Error")
	for _, line := range lines {
		s.Contains(line, "logger_test.go:", "caller location must point at the call site")
		s.Contains(line, "queue test")
	}
}

func (s *LoggerTestSuite) TestLevelFilters() {
	SetLevel(LevelWarn)
	out := &bytes.Buffer{}
	l := New("", out)

	l.Debugf("hidden")
	l.Infof("hidden")
	s.Empty(out.String())

	l.Warnf("shown")
	s.Contains(out.String(), "shown")

	SetLevel(LevelNoPrint)
	out.Reset()
	l.Errorf("hidden")
	s.Empty(out.String())
}

func (s *LoggerTestSuite) TestSetLevelIgnoresOutOfRange() {
	SetLevel(LevelInfo)
	SetLevel(LevelNoPrint + 1)
	s.Equal(LevelInfo, Level())
	SetLevel(-1)
	s.Equal(LevelInfo, Level())
}

func TestLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
