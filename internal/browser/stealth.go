package browser

// evasionScript patches the handful of headless-Chrome tells that retail
// anti-bot vendors actually check, layered on top of go-rod/stealth's
// puppeteer-extra evasions.
const evasionScript = `
(function() {
    'use strict';

    Object.defineProperty(navigator, 'webdriver', {
        get: () => undefined,
        configurable: true
    });
    try {
        delete Object.getPrototypeOf(navigator).webdriver;
    } catch (e) {}

    Object.defineProperty(navigator, 'languages', {
        get: () => Object.freeze(['en-US', 'en']),
        configurable: true
    });

    if (!window.chrome) {
        Object.defineProperty(window, 'chrome', { value: {}, writable: true });
    }
    if (!window.chrome.runtime) {
        window.chrome.runtime = {
            get id() { return undefined; },
            connect: function() {},
            sendMessage: function() {}
        };
    }

    // Notification permission probe mismatch is a common headless check.
    try {
        const originalQuery = Permissions.prototype.query;
        Permissions.prototype.query = function(parameters) {
            if (parameters.name === 'notifications') {
                return Promise.resolve({ state: Notification.permission });
            }
            return originalQuery.call(this, parameters);
        };
    } catch (e) {}

    // SwiftShader strings in WebGL betray GPU-less rendering.
    const vendorPatch = {
        apply: function(target, ctx, args) {
            const param = args[0];
            if (param === 37445) return 'Intel Inc.';
            if (param === 37446) return 'Intel Iris OpenGL Engine';
            return Reflect.apply(target, ctx, args);
        }
    };
    try {
        WebGLRenderingContext.prototype.getParameter =
            new Proxy(WebGLRenderingContext.prototype.getParameter, vendorPatch);
    } catch (e) {}
    try {
        WebGL2RenderingContext.prototype.getParameter =
            new Proxy(WebGL2RenderingContext.prototype.getParameter, vendorPatch);
    } catch (e) {}

    if (!navigator.hardwareConcurrency) {
        Object.defineProperty(navigator, 'hardwareConcurrency', {
            get: () => 8,
            configurable: true
        });
    }
    if (!navigator.deviceMemory) {
        Object.defineProperty(navigator, 'deviceMemory', {
            get: () => 8,
            configurable: true
        });
    }
    if (!navigator.connection) {
        Object.defineProperty(navigator, 'connection', {
            get: () => ({ effectiveType: '4g', rtt: 100, downlink: 10, saveData: false }),
            configurable: true
        });
    }
})();
`
