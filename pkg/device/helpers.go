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

package device

// ReadAll reads from d until EOF, the way hash filters in pull mode
// exhaustively drain their underlying before absorbing it (§4.4).
func ReadAll(d *Device) ([]byte, error) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := d.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if d.EOF() {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// WriteFull writes all of p to d, looping on short writes until an error
// or the full count lands.
func WriteFull(d *Device, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := d.Write(p[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, nil
		}
	}
	return n, nil
}
