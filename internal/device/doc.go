// Package device talks to hardware challenge-response tokens through the
// ykman command line tool.
//
// Devices are listed by serial number. A challenge is answered on one of
// the two OTP slots of a device, which may require the user to touch it;
// the call blocks until the device answers.
package device
