/*
Copyright 2013 The Camlistore Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// devpipe assembles a stack of devio devices from a JSON pipeline
// descriptor and runs it, the way the teacher's serverinit assembles a
// blobserver storage stack from a jsonconfig.Obj tree — here the tree
// describes a chain of devices instead of storage backends.
//
// A descriptor is a JSON array of stage objects, each built on top of
// the previous stage's device (its "under"). The first stage is
// normally a source (cstring, stdin, dynamic, null); later stages wrap
// it with filters:
//
//	[
//	  {"kind": "cstring", "value": "any carnal pleasur"},
//	  {"kind": "base64-encode", "mode": "r"}
//	]
//
// A stage that needs two devices instead of one (tee, concat) names
// them with a "backends" list of earlier stages' "id"s, mirroring how
// the teacher's replica storage config takes a "backends" list of
// storage prefixes (pkg/blobserver/replica) instead of a single one.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"go4.org/jsonconfig"

	"github.com/camdev/devio/internal/hashutil"
	"github.com/camdev/devio/pkg/device"
	"github.com/camdev/devio/pkg/devcipher"
	"github.com/camdev/devio/pkg/devcodec"
	"github.com/camdev/devio/pkg/devfilter"
	"github.com/camdev/devio/pkg/devhash"
	"github.com/camdev/devio/pkg/devmem"
	"github.com/camdev/devio/pkg/devring"
)

func main() {
	configPath := flag.String("config", "", "pipeline descriptor JSON file")
	flag.Parse()
	if *configPath == "" {
		log.Fatal("devpipe: -config is required")
	}

	runID := uuid.New()

	stages, err := loadDescriptor(*configPath)
	if err != nil {
		log.Fatalf("devpipe[%s]: %v", runID, err)
	}

	d, err := assemble(stages)
	if err != nil {
		log.Fatalf("devpipe[%s]: %v", runID, err)
	}
	defer d.Close()

	out, err := device.ReadAll(d)
	if err != nil {
		log.Fatalf("devpipe[%s]: read pipeline: %v", runID, err)
	}
	log.Printf("devpipe[%s]: %d bytes through %d stages", runID, len(out), len(stages))
	os.Stdout.Write(out)
}

// rawStage is one descriptor entry, decoded generically so its keys can
// be re-examined by jsonconfig.Obj (which wants map[string]interface{},
// not a concrete struct) as well as for the "id"/"backends" stage-linking
// convention this command adds on top of jsonconfig's usual role.
type rawStage map[string]any

func loadDescriptor(path string) ([]rawStage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devpipe: read descriptor: %w", err)
	}
	var stages []rawStage
	if err := json.Unmarshal(data, &stages); err != nil {
		return nil, fmt.Errorf("devpipe: parse descriptor: %w", err)
	}
	return stages, nil
}

// builder tracks stages registered under an "id" so a later tee/concat
// stage can reference one by name.
type builder struct {
	byID map[string]*device.Device
}

// backends resolves the two devices an earlier stage registered under
// the ids of jc's "backends" list, the way the teacher's replica
// storage config takes a list of backend prefixes (pkg/blobserver/replica)
// instead of one positional "under".
func (b *builder) backends(jc jsonconfig.Obj) (x, y *device.Device, err error) {
	ids := jc.RequiredList("backends")
	if len(ids) != 2 {
		return nil, nil, fmt.Errorf("backends must name exactly 2 stage ids, got %d", len(ids))
	}
	x, ok := b.byID[ids[0]]
	if !ok {
		return nil, nil, fmt.Errorf("no earlier stage registered as id %q", ids[0])
	}
	y, ok = b.byID[ids[1]]
	if !ok {
		return nil, nil, fmt.Errorf("no earlier stage registered as id %q", ids[1])
	}
	return x, y, nil
}

func assemble(stages []rawStage) (*device.Device, error) {
	b := &builder{byID: map[string]*device.Device{}}
	var cur *device.Device
	for i, raw := range stages {
		jc := jsonconfig.Obj(raw)
		d, err := b.build(jc, cur)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		if id := jc.OptionalString("id", ""); id != "" {
			b.byID[id] = d
		}
		if err := jc.Validate(); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		cur = d
	}
	if cur == nil {
		return nil, fmt.Errorf("devpipe: empty pipeline descriptor")
	}
	return cur, nil
}

func (b *builder) build(jc jsonconfig.Obj, under *device.Device) (*device.Device, error) {
	kind := jc.RequiredString("kind")
	mode := jc.OptionalString("mode", "r")

	switch kind {
	case "cstring":
		return devmem.OpenCString(jc.RequiredString("value"), mode)
	case "stdin":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return devmem.OpenMemory(data, mode)
	case "dynamic":
		return devmem.OpenDynamic(jc.OptionalInt("capacity", 0), mode)
	case "null":
		return devmem.OpenNull(mode)
	case "ring":
		return devring.Open(jc.RequiredInt("capacity"), mode)
	case "limiter":
		opts := devfilter.LimiterOptions{
			MaxRead:  int64(jc.OptionalInt("maxRead", -1)),
			MaxWrite: int64(jc.OptionalInt("maxWrite", -1)),
			Strict:   jc.OptionalBool("strict", false),
		}
		return devfilter.OpenLimiter(under, opts, mode)
	case "repeat":
		return devfilter.OpenRepeat(under, mode)
	case "tee":
		a, b2, err := b.backends(jc)
		if err != nil {
			return nil, err
		}
		return devfilter.OpenTee(a, b2, mode)
	case "concat":
		first, second, err := b.backends(jc)
		if err != nil {
			return nil, err
		}
		return devfilter.OpenConcat(first, second, mode)
	case "hash":
		algo := hashutil.Algo(jc.OptionalString("algo", string(hashutil.SHA256)))
		return devhash.OpenHash(algo, under, mode)
	case "aes":
		return buildAES(jc, under, mode)
	case "pkcs7-encode":
		return devcipher.OpenPKCS7Encode(jc.RequiredInt("blockSize"), under, mode)
	case "pkcs7-decode":
		return devcipher.OpenPKCS7Decode(jc.RequiredInt("blockSize"), under, mode)
	case "bitpad-encode":
		return devcipher.OpenBitPad(jc.RequiredInt("blockSize"), under, mode)
	case "hex-encode":
		return devcodec.OpenHexEncode(under, mode)
	case "hex-decode":
		return devcodec.OpenHexDecode(under, mode)
	case "base64-encode":
		return devcodec.OpenBase64Encode(under, mode)
	case "base64-decode":
		return devcodec.OpenBase64Decode(under, jc.OptionalBool("strict", false), mode)
	default:
		return nil, fmt.Errorf("unknown stage kind %q", kind)
	}
}

func buildAES(jc jsonconfig.Obj, under *device.Device, mode string) (*device.Device, error) {
	key, err := hex.DecodeString(jc.RequiredString("key"))
	if err != nil {
		return nil, fmt.Errorf("aes key: %w", err)
	}
	var iv []byte
	if ivHex := jc.OptionalString("iv", ""); ivHex != "" {
		iv, err = hex.DecodeString(ivHex)
		if err != nil {
			return nil, fmt.Errorf("aes iv: %w", err)
		}
	}
	cm, err := parseCipherMode(jc.OptionalString("cipherMode", "CBC"))
	if err != nil {
		return nil, err
	}
	encrypt := jc.OptionalBool("encrypt", true)
	return devcipher.OpenAES(key, cm, iv, encrypt, under, mode)
}

func parseCipherMode(s string) (devcipher.Mode, error) {
	switch strings.ToUpper(s) {
	case "ECB":
		return devcipher.ECB, nil
	case "CBC":
		return devcipher.CBC, nil
	case "PCBC":
		return devcipher.PCBC, nil
	case "CFB":
		return devcipher.CFB, nil
	case "OFB":
		return devcipher.OFB, nil
	case "CTR":
		return devcipher.CTR, nil
	default:
		return 0, fmt.Errorf("unknown cipher mode %q", s)
	}
}
