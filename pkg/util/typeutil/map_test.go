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

package typeutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type MapUtilSuite struct {
	suite.Suite
}

func (suite *MapUtilSuite) TestConcurrentMap() {
	currMap := NewConcurrentMap[int64, string]()

	v, loaded := currMap.GetOrInsert(100, "v-100")
	suite.Equal("v-100", v)
	suite.False(loaded)
	v, loaded = currMap.GetOrInsert(100, "v-100-new")
	suite.Equal("v-100", v)
	suite.True(loaded)

	currMap.Insert(101, "v-101")
	suite.True(currMap.Contain(101))
	suite.Equal(2, currMap.Len())
	suite.ElementsMatch([]int64{100, 101}, currMap.Keys())

	v, ok := currMap.Get(101)
	suite.True(ok)
	suite.Equal("v-101", v)

	v, ok = currMap.GetAndRemove(101)
	suite.True(ok)
	suite.Equal("v-101", v)
	_, ok = currMap.GetAndRemove(101)
	suite.False(ok)

	suite.False(currMap.CompareAndRemove(100, "other"))
	suite.True(currMap.CompareAndRemove(100, "v-100"))
	suite.False(currMap.Contain(100))

	currMap.Insert(1, "a")
	currMap.Remove(1)
	_, ok = currMap.Get(1)
	suite.False(ok)
}

func (suite *MapUtilSuite) TestConcurrentMapRange() {
	currMap := NewConcurrentMap[int, int]()
	for i := 0; i < 10; i++ {
		currMap.Insert(i, i*i)
	}

	visited := 0
	currMap.Range(func(key, value int) bool {
		suite.Equal(key*key, value)
		visited++
		return visited < 5
	})
	suite.Equal(5, visited)
}

func (suite *MapUtilSuite) TestConcurrentGetOrInsert() {
	currMap := NewConcurrentMap[string, *int]()
	winners := make([]*int, 16)

	var wg sync.WaitGroup
	for i := range winners {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := i
			winners[i], _ = currMap.GetOrInsert("key", &n)
		}(i)
	}
	wg.Wait()

	for _, w := range winners {
		suite.Same(winners[0], w)
	}
}

func TestMapUtil(t *testing.T) {
	suite.Run(t, new(MapUtilSuite))
}
