package rstab

// Fixed platform keys used by PSARC and SNG decryption. These are
// package-level byte slices that nothing modifies; there is no
// initializer/teardown sequence.

// psarcTocKey is the AES-256 key used to decrypt an encrypted PSARC TOC
//. The IV is always 16 zero bytes.
var psarcTocKey = []byte{
	0xC5, 0x3D, 0xB2, 0x38, 0x70, 0xA1, 0xA2, 0xF7, 0x1C, 0xAE, 0x64, 0x06, 0x1F, 0xDD, 0x0E, 0x11,
	0x57, 0x30, 0x9D, 0xC8, 0x52, 0x04, 0xD4, 0xC5, 0xBF, 0xDF, 0x25, 0x09, 0x0D, 0xF2, 0x57, 0x2C,
}

// sngKeyPC is the AES-256 key used to decrypt .sng payloads built for PC.
var sngKeyPC = []byte{
	0xCB, 0x64, 0x8D, 0xF3, 0xD1, 0x2A, 0x16, 0xBF, 0x71, 0x70, 0x14, 0x14, 0xE6, 0x96, 0x19, 0xEC,
	0x17, 0x1C, 0xCA, 0x5D, 0x2A, 0x14, 0x2E, 0x3E, 0x59, 0xDE, 0x7A, 0xDD, 0xA1, 0x8A, 0x3A, 0x30,
}

// sngKeyMac is the AES-256 key used to decrypt .sng payloads built for Mac.
var sngKeyMac = []byte{
	0x98, 0x21, 0x33, 0x0E, 0x34, 0xB9, 0x1F, 0x70, 0xD0, 0xA4, 0x8C, 0xBD, 0x62, 0x59, 0x93, 0x12,
	0x69, 0x70, 0xCE, 0xA0, 0x91, 0x92, 0xC0, 0xE6, 0xCD, 0xA6, 0x76, 0xCC, 0x98, 0x38, 0x28, 0x9D,
}
